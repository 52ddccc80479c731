package main

import (
	"context"
	"log"
	"nli-data/cmd"
	"nli-data/internal/core"
	"nli-data/internal/messaging"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()
	cfg := cmd.MustLoadConfig()

	db := cmd.OpenDatabase(cfg.DatabaseURL)

	storage := cmd.CreateStorage(context.Background(), cfg.Storage)
	hub := cmd.CreateHub(cfg, storage, nil)

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to start RabbitMQ consumer: %v", err)
	}

	worker := core.NewTaskProcessor(db, storage, publisher, reciever, hub, cfg.Storage.DataBucket)

	go worker.Start()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping worker...")
	worker.Stop()

	log.Println("Worker process stopped.")
}
