package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"nli-data/internal/api"
	"nli-data/internal/config"
	"nli-data/internal/core"
	"nli-data/internal/core/datahub"
	"nli-data/internal/core/dataset"
	"nli-data/internal/database"
	"nli-data/internal/storage"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func MustLoadConfig() config.Config {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	return cfg
}

func OpenDatabase(databaseURL string) *gorm.DB {
	if !strings.Contains(databaseURL, "://") && !strings.HasPrefix(databaseURL, "file:") {
		if err := os.MkdirAll(filepath.Dir(databaseURL), os.ModePerm); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
	}

	db, err := database.NewDatabase(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

// CreateStorage returns an S3 provider when an endpoint or credentials are
// configured and a directory backed provider otherwise. The data bucket is
// created if needed.
func CreateStorage(ctx context.Context, cfg config.StorageConfig) storage.Provider {
	var provider storage.Provider
	if cfg.UseS3() {
		s3p, err := storage.NewS3Provider(ctx, storage.S3ProviderConfig{
			S3EndpointURL:     cfg.S3EndpointURL,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 client: %v", err)
		}
		provider = s3p
	} else {
		local, err := storage.NewLocalProvider(cfg.StorageDir)
		if err != nil {
			log.Fatalf("Failed to create storage client: %v", err)
		}
		provider = local
	}

	if err := provider.CreateBucket(ctx, cfg.DataBucket); err != nil {
		log.Fatalf("Failed to create bucket %s: %v", cfg.DataBucket, err)
	}

	slog.Info("storage ready", "s3", cfg.UseS3(), "bucket", cfg.DataBucket)
	return provider
}

func CreateHub(cfg config.Config, provider storage.Provider, progress io.Writer) *datahub.Hub {
	opts := []datahub.Option{}
	if provider != nil {
		opts = append(opts, datahub.WithMirror(provider, cfg.Storage.DataBucket))
	}
	if progress != nil {
		opts = append(opts, datahub.WithProgress(progress))
	}
	return datahub.NewHub(cfg.Data.DataDir, opts...)
}

func CreateDatasetCache(db *gorm.DB, splits *core.SplitStore, size int) *core.DatasetCache {
	return core.NewDatasetCache(size, func(ctx context.Context, corpusId uuid.UUID) (dataset.Split, error) {
		return core.LoadCorpusSplit(ctx, db, splits, corpusId)
	})
}

func CreateRouter(service *api.BackendService) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		service.AddRoutes(r)
	})

	return r
}

func ServerAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}

// ShutdownTimeout bounds graceful server shutdown in every binary.
const ShutdownTimeout = 30 * time.Second
