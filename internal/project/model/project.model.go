package model

import (
	"time"

	"github.com/tatikspace/collab/store"
)

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateProjectResponse struct {
	ProjectID  string `json:"project_id"`
	ShareToken string `json:"share_token"`
}

type ProjectSummary struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	IsOwner     bool           `json:"is_owner"`
	Members     []store.Member `json:"members"`
}

type InviteRequest struct {
	ProjectID string     `json:"project_id"`
	Email     string     `json:"email"`
	Role      store.Role `json:"role"`
}

type JoinByTokenRequest struct {
	Token string `json:"token"`
}

type JoinByTokenResponse struct {
	ProjectID string `json:"project_id"`
}
