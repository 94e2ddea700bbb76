package repository

import (
	"database/sql"

	"github.com/tatikspace/collab/pkg/logger"
	"github.com/tatikspace/collab/store"
)

type ProjectRepository struct {
	DB *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{DB: db}
}

// Create inserts the project row and its owner membership atomically.
func (r *ProjectRepository) Create(p *store.Project) error {
	tx, err := r.DB.Begin()
	if err != nil {
		logger.Sugar.Errorf("Failed to begin create project tx: %v", err)
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO projects (id, name, description, owner_id, share_token, created_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		p.ID, p.Name, p.Description, p.OwnerID, p.ShareToken)
	if err != nil {
		logger.Sugar.Errorf("Failed to create project: %v", err)
		return err
	}
	_, err = tx.Exec(`INSERT INTO project_members (project_id, user_id, role, joined_at) VALUES ($1, $2, $3, NOW())`,
		p.ID, p.OwnerID, store.RoleOwner)
	if err != nil {
		logger.Sugar.Errorf("Failed to add owner member for project %s: %v", p.ID, err)
		return err
	}
	return tx.Commit()
}

// GetProject loads the project row and its full member roster.
func (r *ProjectRepository) GetProject(projectID string) (*store.Project, error) {
	var p store.Project
	err := r.DB.QueryRow(`SELECT id, name, description, owner_id, share_token, created_at FROM projects WHERE id = $1`, projectID).
		Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.ShareToken, &p.CreatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to get project %s: %v", projectID, err)
		}
		return nil, err
	}

	members, err := r.GetMembers(projectID)
	if err != nil {
		return nil, err
	}
	p.Members = members
	return &p, nil
}

func (r *ProjectRepository) GetMembers(projectID string) ([]store.Member, error) {
	rows, err := r.DB.Query(`
		SELECT u.id, u.name, u.email, COALESCE(u.avatar, ''), m.role, m.joined_at
		FROM project_members m JOIN users u ON m.user_id = u.id
		WHERE m.project_id = $1
		ORDER BY m.joined_at ASC`, projectID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get members for project %s: %v", projectID, err)
		return nil, err
	}
	defer rows.Close()

	var members []store.Member
	for rows.Next() {
		var m store.Member
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email, &m.Avatar, &m.Role, &m.JoinedAt); err != nil {
			continue
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *ProjectRepository) GetMemberRole(projectID, userID string) (store.Role, error) {
	var role store.Role
	err := r.DB.QueryRow(`SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID).Scan(&role)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to get member role: %v", err)
	}
	return role, err
}

func (r *ProjectRepository) GetUserByEmail(email string) (string, string, error) {
	var userID, name string
	err := r.DB.QueryRow(`SELECT id, name FROM users WHERE email = $1`, email).Scan(&userID, &name)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to get user by email %s: %v", email, err)
	}
	return userID, name, err
}

// AddMember upserts so a re-invite just refreshes the role, keeping the
// one-member-per-user invariant.
func (r *ProjectRepository) AddMember(projectID, userID string, role store.Role) error {
	_, err := r.DB.Exec(`INSERT INTO project_members (project_id, user_id, role, joined_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = $3`, projectID, userID, role)
	if err != nil {
		logger.Sugar.Errorf("Failed to add member %s to project %s: %v", userID, projectID, err)
	}
	return err
}

func (r *ProjectRepository) UpdateMemberRole(projectID, userID string, role store.Role) (int64, error) {
	result, err := r.DB.Exec(`UPDATE project_members SET role = $1 WHERE project_id = $2 AND user_id = $3`, role, projectID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update role for member %s in project %s: %v", userID, projectID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ProjectRepository) RemoveMember(projectID, userID string) (int64, error) {
	result, err := r.DB.Exec(`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to remove member %s from project %s: %v", userID, projectID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ProjectRepository) GetProjectsByUser(userID string) ([]store.Project, error) {
	rows, err := r.DB.Query(`
		SELECT p.id, p.name, p.description, p.owner_id, p.share_token, p.created_at
		FROM projects p JOIN project_members m ON p.id = m.project_id
		WHERE m.user_id = $1
		ORDER BY p.created_at DESC`, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get projects for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var projects []store.Project
	for rows.Next() {
		var p store.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.ShareToken, &p.CreatedAt); err != nil {
			continue
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Delete removes the project; member rows go with it via ON DELETE CASCADE.
func (r *ProjectRepository) Delete(projectID string) error {
	_, err := r.DB.Exec(`DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete project %s: %v", projectID, err)
	}
	return err
}

func (r *ProjectRepository) GetProjectIDByShareToken(token string) (string, error) {
	var projectID string
	err := r.DB.QueryRow(`SELECT id FROM projects WHERE share_token = $1`, token).Scan(&projectID)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to resolve share token: %v", err)
	}
	return projectID, err
}
