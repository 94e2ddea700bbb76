package session

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tatikspace/collab/protocol"
	"github.com/tatikspace/collab/store"
)

// localBackend answers the whole protocol without a transport: commands
// mutate session state directly through the same events the websocket
// backend would produce. No network I/O, no timers, no reconnection.
type localBackend struct {
	s *Session
}

// open seeds the deterministic offline state: the local user as the sole
// owner member, one system welcome message, presence containing only the
// local user, status connected. No connecting transition is observable.
func (b *localBackend) open() {
	cfg := b.s.cfg
	now := time.Now().UTC()

	project := &store.Project{
		ID:          cfg.ProjectID,
		Name:        "Offline Project",
		Description: "Local session without a collaboration server",
		OwnerID:     cfg.UserID,
		CreatedAt:   now,
		Members: []store.Member{{
			UserID:   cfg.UserID,
			Name:     cfg.UserName,
			Role:     store.RoleOwner,
			JoinedAt: now,
			Online:   true,
		}},
	}
	welcome := &store.ChatMessage{
		ID:        uuid.NewString(),
		ProjectID: cfg.ProjectID,
		Content:   "You are in offline mode. Changes stay on this device.",
		Type:      store.MessageSystem,
		CreatedAt: now,
	}

	b.s.apply(event{kind: evProject, project: project})
	b.s.apply(event{kind: evMessage, message: welcome})
	b.s.apply(event{kind: evOnline, userIDs: []string{cfg.UserID}})
	b.s.apply(event{kind: evOpened})
}

func (b *localBackend) close() {}

func (b *localBackend) connected() bool { return true }

// send interprets an outbound frame locally. Commands against a missing
// target are no-ops; the call still succeeds.
func (b *localBackend) send(out protocol.Outbound) bool {
	switch out.Type {
	case protocol.TypeChat:
		msg := &store.ChatMessage{
			ID:        uuid.NewString(),
			ProjectID: b.s.cfg.ProjectID,
			UserID:    b.s.cfg.UserID,
			UserName:  b.s.cfg.UserName,
			Content:   out.Content,
			Type:      store.MessageText,
			CreatedAt: time.Now().UTC(),
		}
		b.s.apply(event{kind: evMessage, message: msg})

	case protocol.TypeInvite:
		project := b.roster()
		if project == nil {
			return false
		}
		project.Members = append(project.Members, store.Member{
			UserID:   uuid.NewString(),
			Name:     displayNameFromEmail(out.Email),
			Email:    out.Email,
			Role:     out.Role,
			JoinedAt: time.Now().UTC(),
			Online:   false,
		})
		b.s.apply(event{kind: evProject, project: project})

	case protocol.TypeRole:
		project := b.roster()
		if project == nil {
			return false
		}
		if m := project.MemberByID(out.TargetUserID); m != nil {
			m.Role = out.Role
			b.s.apply(event{kind: evProject, project: project})
		}

	case protocol.TypeRemove:
		project := b.roster()
		if project == nil {
			return false
		}
		kept := project.Members[:0]
		removed := false
		for _, m := range project.Members {
			if m.UserID == out.TargetUserID {
				removed = true
				continue
			}
			kept = append(kept, m)
		}
		if removed {
			project.Members = kept
			b.s.apply(event{kind: evProject, project: project})
		}
	}
	return true
}

// roster returns a mutable copy of the current project so local command
// mutations still flow through the reducer as wholesale replacements.
func (b *localBackend) roster() *store.Project {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.s.state.Project == nil {
		return nil
	}
	project := *b.s.state.Project
	project.Members = append([]store.Member(nil), b.s.state.Project.Members...)
	return &project
}

func displayNameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
