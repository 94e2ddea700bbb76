package router

import (
	"database/sql"
	"net/http"

	handler "github.com/tatikspace/collab/internal/project"
	"github.com/tatikspace/collab/internal/project/repository"
	"github.com/tatikspace/collab/internal/project/service"
	"github.com/tatikspace/collab/middleware"
	"github.com/tatikspace/collab/socket"
)

func Setup(db *sql.DB, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(middleware.UserIDKey).(string)
		userName, _ := r.Context().Value(middleware.UserNameKey).(string)
		socket.ServeWs(hub, w, r, userID, userName)
	})
	mux.Handle("/ws/collaboration", middleware.AuthMiddleware(wsHandler))

	// REST API
	projectRepo := repository.NewProjectRepository(db)
	projectService := service.NewProjectService(projectRepo, hub)
	projectHandler := handler.NewProjectHandler(projectService)
	auth := middleware.AuthMiddleware

	mux.Handle("/api/projects/create", auth(http.HandlerFunc(projectHandler.CreateProject)))
	mux.Handle("/api/projects/delete", auth(http.HandlerFunc(projectHandler.DeleteProject)))
	mux.Handle("/api/projects/get", auth(http.HandlerFunc(projectHandler.GetProject)))
	mux.Handle("/api/projects", auth(http.HandlerFunc(projectHandler.GetProjects)))
	mux.Handle("/api/projects/invite", auth(http.HandlerFunc(projectHandler.InviteMember)))
	mux.Handle("/api/projects/join", auth(http.HandlerFunc(projectHandler.JoinByToken)))
	mux.Handle("/api/projects/members", auth(http.HandlerFunc(projectHandler.GetProjectMembers)))

	return middleware.CORSMiddleware(mux)
}
