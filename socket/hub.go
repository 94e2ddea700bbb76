package socket

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tatikspace/collab/internal/project/repository"
	"github.com/tatikspace/collab/pkg/logger"
	"github.com/tatikspace/collab/protocol"
	"github.com/tatikspace/collab/store"
)

// Event is one server-originated frame to fan out to every client in a
// project room.
type Event struct {
	ProjectID string
	Frame     protocol.Inbound
}

type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan Event
	Register   chan *Client
	Unregister chan *Client
	repo       *repository.ProjectRepository
	mu         sync.Mutex
	// Roster caches each open room's project snapshot so role checks and
	// presence decoration don't hit the database per frame.
	Roster   map[string]*store.Project
	Presence map[string]map[string]int // projectID -> userID -> open connections
}

func NewHub(repo *repository.ProjectRepository) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan Event),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		repo:       repo,
		Roster:     make(map[string]*store.Project),
		Presence:   make(map[string]map[string]int),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.ProjectID] == nil {
				h.Rooms[client.ProjectID] = make(map[*Client]bool)
				h.Presence[client.ProjectID] = make(map[string]int)

				project, err := h.repo.GetProject(client.ProjectID)
				if err != nil {
					logger.Sugar.Errorf("Failed to load project %s for room: %v", client.ProjectID, err)
					project = &store.Project{ID: client.ProjectID}
				}
				h.Roster[client.ProjectID] = project
			}
			h.Rooms[client.ProjectID][client] = true
			h.Presence[client.ProjectID][client.UserID]++
			snapshot := h.projectSnapshotLocked(client.ProjectID)
			h.mu.Unlock()

			// The joiner gets the full roster first so its state is complete
			// before any incremental events arrive.
			client.send(protocol.Inbound{Type: protocol.TypeProject, Project: snapshot})

			h.broadcastOnline(client.ProjectID)
			h.broadcastSystem(client.ProjectID, client.UserName+" joined the project")

		case client := <-h.Unregister:
			h.mu.Lock()
			projectID := client.ProjectID
			roomAlive := false
			if _, ok := h.Rooms[projectID][client]; ok {
				delete(h.Rooms[projectID], client)
				close(client.Send)

				if h.Presence[projectID][client.UserID]--; h.Presence[projectID][client.UserID] <= 0 {
					delete(h.Presence[projectID], client.UserID)
				}

				if len(h.Rooms[projectID]) == 0 {
					delete(h.Rooms, projectID)
					delete(h.Presence, projectID)
					delete(h.Roster, projectID)
					logger.Sugar.Infof("Closed and cleaned up empty room: %s", projectID)
				} else {
					roomAlive = true
				}
			}
			h.mu.Unlock()

			if roomAlive {
				h.broadcastOnline(projectID)
			}

		case event := <-h.Broadcast:
			h.fanout(event.ProjectID, event.Frame)
		}
	}
}

// fanout writes one frame to every client in a room. Runs both on the hub
// goroutine and on client goroutines, so a lagging client is only dropped,
// never unregistered from here.
func (h *Hub) fanout(projectID string, frame protocol.Inbound) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling broadcast frame: %v", err)
		return
	}

	// Copy the recipient list so the send loop runs without the lock.
	h.mu.Lock()
	clientsToSend := make([]*Client, 0, len(h.Rooms[projectID]))
	for client := range h.Rooms[projectID] {
		clientsToSend = append(clientsToSend, client)
	}
	h.mu.Unlock()

	for _, client := range clientsToSend {
		select {
		case client.Send <- payload:
		default:
			logger.Sugar.Warnf("Client %s's send buffer was full, dropping frame", client.UserID)
		}
	}
}

// MemberRole returns the cached roster role for a user, or "" if the user is
// not in the room's roster.
func (h *Hub) MemberRole(projectID, userID string) store.Role {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.Roster[projectID].MemberByID(userID); m != nil {
		return m.Role
	}
	return ""
}

// ReloadRoster refreshes the cached project from the database and broadcasts
// the new snapshot to the room. Called after any membership mutation,
// whether it arrived over the socket or through the REST API.
func (h *Hub) ReloadRoster(projectID string) {
	project, err := h.repo.GetProject(projectID)
	if err != nil {
		logger.Sugar.Errorf("Failed to reload roster for project %s: %v", projectID, err)
		return
	}

	h.mu.Lock()
	if _, open := h.Rooms[projectID]; !open {
		h.mu.Unlock()
		return
	}
	h.Roster[projectID] = project
	snapshot := h.projectSnapshotLocked(projectID)
	h.mu.Unlock()

	h.Broadcast <- Event{ProjectID: projectID, Frame: protocol.Inbound{Type: protocol.TypeProject, Project: snapshot}}
}

// RemoveProject evicts a room entirely: cache dropped, every client
// disconnected. Called when a project is deleted via the API.
func (h *Hub) RemoveProject(projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.Roster, projectID)
	delete(h.Presence, projectID)

	if clients, ok := h.Rooms[projectID]; ok {
		for client := range clients {
			client.Conn.Close() // readPump exits and unregisters safely
		}
		delete(h.Rooms, projectID)
	}
}

// KickUser closes every connection a user has in a room. Used after a
// remove command so the removed member doesn't linger.
func (h *Hub) KickUser(projectID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.Rooms[projectID] {
		if client.UserID == userID {
			client.Conn.Close()
		}
	}
}

// broadcastOnline and broadcastSystem are called from the hub goroutine, so
// they fan out directly instead of going through the Broadcast channel.
func (h *Hub) broadcastOnline(projectID string) {
	h.mu.Lock()
	userIDs := make([]string, 0, len(h.Presence[projectID]))
	for userID := range h.Presence[projectID] {
		userIDs = append(userIDs, userID)
	}
	h.mu.Unlock()
	sort.Strings(userIDs)

	h.fanout(projectID, protocol.Inbound{Type: protocol.TypeOnline, UserIDs: userIDs})
}

func (h *Hub) broadcastSystem(projectID, content string) {
	msg := store.ChatMessage{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Content:   content,
		Type:      store.MessageSystem,
		CreatedAt: time.Now().UTC(),
	}
	h.fanout(projectID, protocol.Inbound{Type: protocol.TypeSystem, Message: &msg})
}

// projectSnapshotLocked copies the cached project with each member's Online
// flag decorated from presence. Callers must hold h.mu.
func (h *Hub) projectSnapshotLocked(projectID string) *store.Project {
	cached := h.Roster[projectID]
	if cached == nil {
		return nil
	}
	snapshot := *cached
	snapshot.Members = make([]store.Member, len(cached.Members))
	copy(snapshot.Members, cached.Members)
	for i := range snapshot.Members {
		snapshot.Members[i].Online = h.Presence[projectID][snapshot.Members[i].UserID] > 0
	}
	return &snapshot
}
