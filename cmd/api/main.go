package main

import (
	"context"
	"log"
	"nli-data/cmd"
	"nli-data/internal/api"
	"nli-data/internal/core"
	"nli-data/internal/messaging"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()
	cfg := cmd.MustLoadConfig()

	db := cmd.OpenDatabase(cfg.DatabaseURL)

	storage := cmd.CreateStorage(context.Background(), cfg.Storage)
	hub := cmd.CreateHub(cfg, storage, nil)

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	splits := core.NewSplitStore(hub, storage, cfg.Storage.DataBucket)
	apiHandler := api.NewBackendService(db, publisher, hub, cmd.CreateDatasetCache(db, splits, cfg.Data.CacheSize))

	server := &http.Server{
		Addr:    cmd.ServerAddr(cfg.Port),
		Handler: cmd.CreateRouter(apiHandler),
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %d", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	log.Println("Server stopped.")
}
