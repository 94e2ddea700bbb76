package service

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/tatikspace/collab/internal/project/model"
	"github.com/tatikspace/collab/internal/project/repository"
	"github.com/tatikspace/collab/socket"
	"github.com/tatikspace/collab/store"
)

type ProjectService struct {
	Repo *repository.ProjectRepository
	Hub  *socket.Hub
}

func NewProjectService(repo *repository.ProjectRepository, hub *socket.Hub) *ProjectService {
	return &ProjectService{Repo: repo, Hub: hub}
}

func (s *ProjectService) CreateProject(ownerID, name, description string) (*store.Project, error) {
	if name == "" {
		name = "Untitled Project"
	}
	project := &store.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		ShareToken:  uuid.NewString(),
	}
	if err := s.Repo.Create(project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) GetProjects(userID string) ([]model.ProjectSummary, error) {
	projects, err := s.Repo.GetProjectsByUser(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.ProjectSummary, 0, len(projects))
	for _, p := range projects {
		members, _ := s.Repo.GetMembers(p.ID)
		if members == nil {
			members = []store.Member{}
		}
		summaries = append(summaries, model.ProjectSummary{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			CreatedAt:   p.CreatedAt,
			IsOwner:     p.OwnerID == userID,
			Members:     members,
		})
	}
	return summaries, nil
}

func (s *ProjectService) GetProject(projectID, userID string) (*store.Project, error) {
	if _, err := s.Repo.GetMemberRole(projectID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("unauthorized: not a project member")
		}
		return nil, err
	}
	return s.Repo.GetProject(projectID)
}

func (s *ProjectService) DeleteProject(projectID, userID string) error {
	project, err := s.Repo.GetProject(projectID)
	if err != nil {
		return err
	}
	if project.OwnerID != userID {
		return errors.New("unauthorized: only the owner can delete a project")
	}

	if err := s.Repo.Delete(projectID); err != nil {
		return err
	}
	s.Hub.RemoveProject(projectID)
	return nil
}

func (s *ProjectService) InviteMember(callerID string, req model.InviteRequest) error {
	role, err := s.Repo.GetMemberRole(req.ProjectID, callerID)
	if err != nil || !role.CanInvite() {
		return errors.New("unauthorized: only owners and editors can invite")
	}
	if !req.Role.Valid() {
		return errors.New("invalid role: must be owner, editor, or viewer")
	}

	targetUserID, _, err := s.Repo.GetUserByEmail(req.Email)
	if err != nil {
		return errors.New("no user found with that email")
	}

	if err := s.Repo.AddMember(req.ProjectID, targetUserID, req.Role); err != nil {
		return err
	}
	s.Hub.ReloadRoster(req.ProjectID)
	return nil
}

// JoinByToken resolves a share link to its project and adds the caller as a
// viewer. Token generation happens at project creation.
func (s *ProjectService) JoinByToken(token, userID string) (string, error) {
	projectID, err := s.Repo.GetProjectIDByShareToken(token)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", errors.New("invalid share link")
		}
		return "", err
	}

	// Existing members keep their role; the upsert in AddMember would
	// otherwise demote them.
	if _, err := s.Repo.GetMemberRole(projectID, userID); err == nil {
		return projectID, nil
	}

	if err := s.Repo.AddMember(projectID, userID, store.RoleViewer); err != nil {
		return "", err
	}
	s.Hub.ReloadRoster(projectID)
	return projectID, nil
}
