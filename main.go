package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/tatikspace/collab/config/database"
	"github.com/tatikspace/collab/internal/project/repository"
	"github.com/tatikspace/collab/pkg/logger"
	"github.com/tatikspace/collab/router"
	"github.com/tatikspace/collab/socket"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}
	logger.Init()

	db := database.Connect()
	defer db.Close()

	projectRepo := repository.NewProjectRepository(db)

	// The hub is the central component managing all rooms and clients; its
	// event loop runs for the life of the process.
	hub := socket.NewHub(projectRepo)
	go hub.Run()

	handler := router.Setup(db, hub)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Sugar.Infof("Collaboration backend listening on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Sugar.Fatalf("Server exited: %v", err)
	}
}
