package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"nli-data/cmd"
	"nli-data/internal/api"
	"nli-data/internal/core"
	"nli-data/internal/messaging"
	"nli-data/internal/storage"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Root string `env:"ROOT" envDefault:"./nli-data"`
	Port int    `env:"PORT" envDefault:"3001"`
}

func main() {
	cmd.LoadEnvFile()

	var localCfg Config
	if err := env.Parse(&localCfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	// unset paths fall under ROOT
	for key, value := range map[string]string{
		"DATABASE_URL": filepath.Join(localCfg.Root, "db", "nli-data.db"),
		"DATA_DIR":     filepath.Join(localCfg.Root, "data"),
		"STORAGE_DIR":  filepath.Join(localCfg.Root, "storage"),
	} {
		if _, ok := os.LookupEnv(key); !ok {
			os.Setenv(key, value) //nolint:errcheck
		}
	}
	cfg := cmd.MustLoadConfig()
	cfg.Port = localCfg.Port

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(localCfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(localCfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting backend", "root", localCfg.Root, "port", cfg.Port, "data_dir", cfg.Data.DataDir)

	db := cmd.OpenDatabase(cfg.DatabaseURL)

	provider, err := storage.NewLocalProvider(cfg.Storage.StorageDir)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}
	if err := provider.CreateBucket(context.Background(), cfg.Storage.DataBucket); err != nil {
		log.Fatalf("Failed to create bucket: %v", err)
	}

	hub := cmd.CreateHub(cfg, provider, nil)

	queue := messaging.NewInMemoryQueue()

	worker := core.NewTaskProcessor(db, provider, queue, queue, hub, cfg.Storage.DataBucket)

	splits := core.NewSplitStore(hub, provider, cfg.Storage.DataBucket)
	apiHandler := api.NewBackendService(db, queue, hub, cmd.CreateDatasetCache(db, splits, cfg.Data.CacheSize))
	server := &http.Server{
		Addr:    cmd.ServerAddr(cfg.Port),
		Handler: cmd.CreateRouter(apiHandler),
	}

	slog.Info("starting worker")
	go worker.Start()

	// publishing blocks while the bounded queue is full
	go func() {
		count, err := core.RequeueUnfinished(context.Background(), db, queue)
		if err != nil {
			slog.Error("error requeueing unfinished corpora", "requeued", count, "error", err)
			return
		}
		if count > 0 {
			slog.Info("requeued unfinished corpora", "count", count)
		}
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
