package socket

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tatikspace/collab/pkg/logger"
	"github.com/tatikspace/collab/protocol"
	"github.com/tatikspace/collab/store"
)

const (
	writeWait = 10 * time.Second
	// Clients ping every 25s, so a 60s read deadline tolerates two misses.
	readWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from the SPA dev server.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	ProjectID string
	UserID    string
	UserName  string
	Send      chan []byte
}

// ServeWs upgrades the HTTP connection and waits for the client's join
// frame before admitting it to a room. The user id always comes from the
// authenticated request, never from the frame.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID, userName string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(readWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}

	join, err := protocol.DecodeOutbound(raw)
	if err != nil || join.Type != protocol.TypeJoin || join.ProjectID == "" {
		logger.Sugar.Warnf("Rejecting connection from %s: first frame was not a valid join", userID)
		conn.Close()
		return
	}

	// Only roster members may join the room.
	if _, err := hub.repo.GetMemberRole(join.ProjectID, userID); err != nil {
		if err == sql.ErrNoRows {
			logger.Sugar.Warnf("Connection rejected: user %s is not a member of project %s", userID, join.ProjectID)
			writeFrame(conn, protocol.Inbound{Type: protocol.TypeError, Error: "not a project member"})
		}
		conn.Close()
		return
	}

	if userName == "" {
		userName = join.UserName
	}

	client := &Client{
		Hub:       hub,
		Conn:      conn,
		ProjectID: join.ProjectID,
		UserID:    userID,
		UserName:  userName,
		Send:      make(chan []byte, 256),
	}

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(readWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(readWait))

		msg, err := protocol.DecodeOutbound(raw)
		if err != nil {
			logger.Sugar.Errorf("Error unmarshalling frame from %s: %v", c.UserID, err)
			continue
		}

		// Server-authoritative fields: whatever the frame claims, commands
		// act on this room as this user.
		msg.ProjectID = c.ProjectID
		msg.UserID = c.UserID

		switch msg.Type {
		case protocol.TypePing:
			// Keep-alive only; the read deadline refresh above is the point.
		case protocol.TypeChat:
			c.handleChat(msg)
		case protocol.TypeInvite:
			c.handleInvite(msg)
		case protocol.TypeRole:
			c.handleRole(msg)
		case protocol.TypeRemove:
			c.handleRemove(msg)
		default:
			logger.Sugar.Debugf("Ignoring frame with unknown type %q from %s", msg.Type, c.UserID)
		}
	}
}

func (c *Client) handleChat(msg protocol.Outbound) {
	if msg.Content == "" {
		return
	}
	chat := store.ChatMessage{
		ID:        uuid.NewString(),
		ProjectID: c.ProjectID,
		UserID:    c.UserID,
		UserName:  c.UserName,
		Content:   msg.Content,
		Type:      store.MessageText,
		CreatedAt: time.Now().UTC(),
	}
	// Echoed to the whole room, sender included; clients append their
	// transcript from inbound frames only.
	c.Hub.Broadcast <- Event{ProjectID: c.ProjectID, Frame: protocol.Inbound{Type: protocol.TypeMessage, Message: &chat}}
}

func (c *Client) handleInvite(msg protocol.Outbound) {
	if !c.Hub.MemberRole(c.ProjectID, c.UserID).CanInvite() {
		c.sendError("only owners and editors can invite members")
		return
	}
	if !msg.Role.Valid() {
		c.sendError("invalid role: must be owner, editor, or viewer")
		return
	}

	targetUserID, _, err := c.Hub.repo.GetUserByEmail(msg.Email)
	if err != nil {
		c.sendError("no user found with that email")
		return
	}
	if err := c.Hub.repo.AddMember(c.ProjectID, targetUserID, msg.Role); err != nil {
		c.sendError("failed to invite member")
		return
	}
	c.Hub.ReloadRoster(c.ProjectID)
}

func (c *Client) handleRole(msg protocol.Outbound) {
	if !c.Hub.MemberRole(c.ProjectID, c.UserID).CanManage() {
		c.sendError("only the owner can change roles")
		return
	}
	if !msg.Role.Valid() {
		c.sendError("invalid role: must be owner, editor, or viewer")
		return
	}

	affected, err := c.Hub.repo.UpdateMemberRole(c.ProjectID, msg.TargetUserID, msg.Role)
	if err != nil {
		c.sendError("failed to change role")
		return
	}
	if affected == 0 {
		c.sendError("member not found")
		return
	}
	c.Hub.ReloadRoster(c.ProjectID)
}

func (c *Client) handleRemove(msg protocol.Outbound) {
	if !c.Hub.MemberRole(c.ProjectID, c.UserID).CanManage() {
		c.sendError("only the owner can remove members")
		return
	}
	if c.Hub.MemberRole(c.ProjectID, msg.TargetUserID) == store.RoleOwner {
		c.sendError("the project owner cannot be removed")
		return
	}

	affected, err := c.Hub.repo.RemoveMember(c.ProjectID, msg.TargetUserID)
	if err != nil {
		c.sendError("failed to remove member")
		return
	}
	if affected == 0 {
		c.sendError("member not found")
		return
	}
	c.Hub.ReloadRoster(c.ProjectID)
	c.Hub.KickUser(c.ProjectID, msg.TargetUserID)
}

// sendError surfaces a non-fatal error to this client only; the connection
// stays open.
func (c *Client) sendError(reason string) {
	c.send(protocol.Inbound{Type: protocol.TypeError, Error: reason})
}

func (c *Client) send(frame protocol.Inbound) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling frame: %v", err)
		return
	}
	select {
	case c.Send <- payload:
	default:
		logger.Sugar.Warnf("Client %s's send buffer was full, dropping frame", c.UserID)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame protocol.Inbound) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, payload)
}
