package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"editpdf/config"
	"editpdf/config/database"
	"editpdf/internal/feedback/repository"
	"editpdf/internal/feedback/service"
	"editpdf/pkg/logger"
	"editpdf/router"
	"editpdf/socket"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables from OS")
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.Debug)
	defer logger.Sync()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Sugar.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	logger.Sugar.Info("Successfully connected to the database")

	svc := service.NewFeedbackService(repository.NewFeedbackRepository(db), nil)
	// The hub runs the editors and is told about saves made over REST.
	hub := socket.NewHub(svc, cfg.Editor, cfg.CORS)
	svc.Hub = hub
	go hub.Run()

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router.Setup(cfg, svc, hub)}
	go func() {
		logger.Sugar.Infof("Feedback editor listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Sugar.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hub.Shutdown(ctx); err != nil {
		logger.Sugar.Warnf("Editors still closing: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar.Errorf("Shutdown: %v", err)
	}
}
