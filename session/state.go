package session

import "github.com/tatikspace/collab/store"

// Status is the connection state of a session, owned exclusively by the
// session's state store.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// State is the client's authoritative view of one collaboration session:
// connection status, project roster, chat transcript, presence set, and the
// last surfaced error. Callers only ever see copies; all mutation flows
// through the transition reducer.
type State struct {
	Status        Status
	Project       *store.Project
	Messages      []store.ChatMessage
	OnlineUserIDs []string
	LastError     string
}

func (s State) clone() State {
	out := s
	if s.Project != nil {
		project := *s.Project
		project.Members = append([]store.Member(nil), s.Project.Members...)
		out.Project = &project
	}
	out.Messages = append([]store.ChatMessage(nil), s.Messages...)
	out.OnlineUserIDs = append([]string(nil), s.OnlineUserIDs...)
	return out
}

type eventKind int

const (
	evOpened eventKind = iota
	evClosed
	evErrored      // transport-level failure; moves status to error
	evReconnecting // a reconnection attempt is firing
	evProject      // full roster replacement
	evMessage      // single transcript append (text or system)
	evOnline       // full presence-set replacement
	evServerError  // non-fatal error frame; connection stays up
	evClearError
)

type event struct {
	kind    eventKind
	err     string
	project *store.Project
	message *store.ChatMessage
	userIDs []string
}

// transition is the session's state machine: a pure (state, event) -> state
// reducer. The transcript is append-only and ordered by delivery; roster and
// presence are last-write-wins wholesale replacements.
func transition(s State, ev event) State {
	switch ev.kind {
	case evOpened:
		s.Status = StatusConnected
	case evClosed:
		// A clean close only demotes an established connection; a close
		// that follows a transport error leaves the error status visible.
		if s.Status == StatusConnected {
			s.Status = StatusDisconnected
		}
	case evErrored:
		s.Status = StatusError
		s.LastError = ev.err
	case evReconnecting:
		s.Status = StatusConnecting
	case evProject:
		s.Project = ev.project
	case evMessage:
		if ev.message != nil {
			s.Messages = append(s.Messages, *ev.message)
		}
	case evOnline:
		s.OnlineUserIDs = ev.userIDs
	case evServerError:
		s.LastError = ev.err
	case evClearError:
		s.LastError = ""
	}
	return s
}
