// Package session implements the client side of the realtime collaboration
// protocol: a connection manager that keeps one project's roster, presence,
// and chat transcript synchronized with the collaboration server, riding out
// disconnects with capped exponential backoff. An offline backend provides
// the same surface without any transport for local/demo use.
package session

import (
	"sync"

	"github.com/tatikspace/collab/protocol"
	"github.com/tatikspace/collab/store"
)

// Config describes one collaboration session. BaseURL is the http(s) origin
// of the collaboration server; the scheme decides ws vs wss. Offline selects
// the transport-free backend, in which case BaseURL and Token are unused.
type Config struct {
	BaseURL   string
	Token     string
	ProjectID string
	UserID    string
	UserName  string
	Offline   bool

	// OnChange, if set, is invoked with a snapshot after every state
	// change. Called from the session's own goroutines; implementations
	// must not call back into the session synchronously.
	OnChange func(State)
}

// sessionBackend is the capability a session needs from its transport:
// push a command frame, report liveness, release resources. The websocket
// backend and the offline backend both satisfy it, which keeps the command
// methods free of online/offline branching.
type sessionBackend interface {
	open()
	close()
	connected() bool
	send(out protocol.Outbound) bool
}

// Session is the public surface the UI layer holds: a read-only state
// snapshot plus the five commands and two derived capability booleans.
type Session struct {
	cfg Config

	mu     sync.Mutex
	state  State
	closed bool

	backend sessionBackend
}

// New builds a session for a (projectID, userID, userName) tuple. Nothing
// happens until Open is called.
func New(cfg Config) *Session {
	s := &Session{
		cfg:   cfg,
		state: State{Status: StatusConnecting},
	}
	if cfg.Offline {
		s.backend = &localBackend{s: s}
	} else {
		s.backend = newWSBackend(s)
	}
	return s
}

// Open activates the session: the websocket backend starts dialing in the
// background, the offline backend seeds its local state immediately.
func (s *Session) Open() {
	s.backend.open()
}

// Close tears the session down: idempotent, cancels every timer the backend
// owns, and closes the connection if one is open. Events arriving after
// Close are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.backend.close()
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SendMessage sends one chat message. It reports false when the session is
// not connected; nothing is queued. The offline backend is always
// connected, so local sends always succeed.
func (s *Session) SendMessage(content string) bool {
	if !s.isConnected() {
		return false
	}
	return s.backend.send(protocol.Chat(s.cfg.ProjectID, content))
}

// InviteMember asks for a new member by email. Online this is fire-and-
// forget: the roster updates when the server broadcasts the new project
// snapshot. Offline the member is synthesized locally.
func (s *Session) InviteMember(email string, role store.Role) bool {
	if !role.Valid() {
		return false
	}
	if !s.isConnected() {
		return false
	}
	return s.backend.send(protocol.Invite(s.cfg.ProjectID, email, role))
}

// ChangeRole requests a role change for a member.
func (s *Session) ChangeRole(targetUserID string, role store.Role) bool {
	if !role.Valid() {
		return false
	}
	if !s.isConnected() {
		return false
	}
	return s.backend.send(protocol.ChangeRole(s.cfg.ProjectID, targetUserID, role))
}

// RemoveMember requests removal of a member.
func (s *Session) RemoveMember(targetUserID string) bool {
	if !s.isConnected() {
		return false
	}
	return s.backend.send(protocol.Remove(s.cfg.ProjectID, targetUserID))
}

// ClearError clears the stored error description. Always available,
// regardless of connection state.
func (s *Session) ClearError() {
	s.apply(event{kind: evClearError})
}

// CallerRole is the local user's role in the roster, or "" if the user is
// not present in the roster yet.
func (s *Session) CallerRole() store.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.state.Project.MemberByID(s.cfg.UserID); m != nil {
		return m.Role
	}
	return ""
}

// CanInvite reports whether the local user may invite new members. Derived
// from the roster on every call, never stored.
func (s *Session) CanInvite() bool {
	return s.CallerRole().CanInvite()
}

// CanManage reports whether the local user may change roles or remove
// members.
func (s *Session) CanManage() bool {
	return s.CallerRole().CanManage()
}

func (s *Session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.state.Status == StatusConnected && s.backend.connected()
}

// apply runs one event through the reducer and notifies the subscriber.
// This is the only place session state is written.
func (s *Session) apply(ev event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = transition(s.state, ev)
	var snapshot State
	notify := s.cfg.OnChange != nil
	if notify {
		snapshot = s.state.clone()
	}
	s.mu.Unlock()

	if notify {
		s.cfg.OnChange(snapshot)
	}
}
