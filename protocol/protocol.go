// Package protocol defines the JSON text frames exchanged over the
// /ws/collaboration endpoint. Both the server hub and the client session
// manager speak this format; frames are newline-free JSON objects with a
// "type" discriminator.
package protocol

import (
	"encoding/json"

	"github.com/tatikspace/collab/store"
)

// Client → server frame types.
const (
	TypeJoin   = "join"
	TypePing   = "ping"
	TypeChat   = "chat"
	TypeInvite = "invite"
	TypeRole   = "role"
	TypeRemove = "remove"
)

// Server → client frame types.
const (
	TypeProject = "project"
	TypeMessage = "message"
	TypeOnline  = "online"
	TypeSystem  = "system"
	TypeError   = "error"
)

// Outbound is a client → server command frame. Only the fields relevant to
// Type are populated; the rest stay empty and are omitted on the wire.
type Outbound struct {
	Type         string     `json:"type"`
	ProjectID    string     `json:"projectId,omitempty"`
	UserID       string     `json:"userId,omitempty"`
	UserName     string     `json:"userName,omitempty"`
	Content      string     `json:"content,omitempty"`
	Email        string     `json:"email,omitempty"`
	Role         store.Role `json:"role,omitempty"`
	TargetUserID string     `json:"targetUserId,omitempty"`
}

// Inbound is a server → client event frame.
type Inbound struct {
	Type    string             `json:"type"`
	Project *store.Project     `json:"project,omitempty"`
	Message *store.ChatMessage `json:"message,omitempty"`
	UserIDs []string           `json:"userIds,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Join builds the frame sent once immediately after the connection opens.
func Join(projectID, userID, userName string) Outbound {
	return Outbound{Type: TypeJoin, ProjectID: projectID, UserID: userID, UserName: userName}
}

// Ping builds the keep-alive frame.
func Ping() Outbound {
	return Outbound{Type: TypePing}
}

// Chat builds the frame for one user-authored chat message.
func Chat(projectID, content string) Outbound {
	return Outbound{Type: TypeChat, ProjectID: projectID, Content: content}
}

// Invite builds the frame asking the server to add a member by email.
func Invite(projectID, email string, role store.Role) Outbound {
	return Outbound{Type: TypeInvite, ProjectID: projectID, Email: email, Role: role}
}

// ChangeRole builds the frame asking the server to change a member's role.
func ChangeRole(projectID, targetUserID string, role store.Role) Outbound {
	return Outbound{Type: TypeRole, ProjectID: projectID, TargetUserID: targetUserID, Role: role}
}

// Remove builds the frame asking the server to remove a member.
func Remove(projectID, targetUserID string) Outbound {
	return Outbound{Type: TypeRemove, ProjectID: projectID, TargetUserID: targetUserID}
}

// DecodeInbound parses one server → client frame. Callers are expected to
// ignore frames with an unknown Type rather than treat them as errors.
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	err := json.Unmarshal(data, &in)
	return in, err
}

// DecodeOutbound parses one client → server frame.
func DecodeOutbound(data []byte) (Outbound, error) {
	var out Outbound
	err := json.Unmarshal(data, &out)
	return out, err
}
