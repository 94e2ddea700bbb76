package store

import "time"

// Role is the capability level of a project member.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleViewer
}

// CanInvite reports whether a member with this role may invite new members.
func (r Role) CanInvite() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanManage reports whether a member with this role may change roles or
// remove other members.
func (r Role) CanManage() bool {
	return r == RoleOwner
}

// Member is one participant bound to a project. At most one Member exists
// per user id per project.
type Member struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
	Online   bool      `json:"online"`
}

// MessageType discriminates user-authored chat from connector notices.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
)

// ChatMessage is an immutable record of one chat event. The transcript is
// append-only; messages are never edited or reordered.
type ChatMessage struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	UserID    string      `json:"user_id"`
	UserName  string      `json:"user_name"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// Project is the aggregate a collaboration session revolves around.
// Received wholesale from the server on join, or synthesized locally in
// offline mode.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	ShareToken  string    `json:"share_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Members     []Member  `json:"members"`
}

// MemberByID returns the member with the given user id, or nil.
func (p *Project) MemberByID(userID string) *Member {
	if p == nil {
		return nil
	}
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			return &p.Members[i]
		}
	}
	return nil
}
