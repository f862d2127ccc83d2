package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sherlock-kb/sherlock/internal/api"
	"github.com/sherlock-kb/sherlock/internal/api/middleware"
	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/sherlock-kb/sherlock/internal/config"
	"github.com/sherlock-kb/sherlock/internal/imageutil"
	"github.com/sherlock-kb/sherlock/internal/logger"
	"github.com/sherlock-kb/sherlock/internal/repository"
	"github.com/sherlock-kb/sherlock/internal/retry"
	"github.com/sherlock-kb/sherlock/internal/service"
	"github.com/sherlock-kb/sherlock/internal/storage"
)

func main() {
	// Initialize logger from environment
	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	knowledgeRepo := repository.NewKnowledgeRepository(db)
	taxonomyRepo := repository.NewTaxonomyRepository(db)
	jobRepo := repository.NewJobRepository(db)

	vectorRepo, err := repository.NewVectorRepository(&repository.VectorConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize vector repository")
	}
	defer vectorRepo.Close()

	// Ensure vector collection exists
	ctx := context.Background()
	if err := vectorRepo.EnsureCollection(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure vector collection")
	}

	// Initialize services
	extractService, err := service.NewExtractionService(&service.ExtractionConfig{
		Provider: cfg.Vision.Provider,
		Model:    cfg.Vision.Model,
		APIKey:   cfg.Vision.APIKey,
		BaseURL:  cfg.Vision.BaseURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize extraction service")
	}

	embedService, err := service.NewEmbeddingService(&service.EmbeddingServiceConfig{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize embedding service")
	}

	ingestService := service.NewIngestService(service.IngestServiceConfig{
		Records:  knowledgeRepo,
		Vectors:  vectorRepo,
		Taxonomy: taxonomyRepo,
		Jobs:     jobRepo,
		Extract:  extractService,
		Embed:    embedService,
		Fetcher:  imageutil.NewFetcher(cfg.Ingest.FetchTimeout),
		Policy: retry.Policy{
			MaxAttempts: cfg.Ingest.MaxAttempts,
			BaseDelay:   cfg.Ingest.BaseDelay,
			MaxDelay:    cfg.Ingest.MaxDelay,
			Jitter:      time.Second,
			RetryIf:     apperr.IsRetryable,
		},
	})

	searchService := service.NewSearchService(service.SearchServiceConfig{
		Records:        knowledgeRepo,
		Vectors:        vectorRepo,
		Embed:          embedService,
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxLimit:       cfg.Search.MaxLimit,
		ScoreThreshold: cfg.Search.ScoreThreshold,
	})

	// Object storage is optional; bucket ingestion stays disabled without it
	var bucket service.ObjectSource
	if cfg.S3.Bucket != "" && (cfg.S3.Endpoint != "" || cfg.S3.AccessKey != "") {
		s3Storage, err := storage.NewS3Storage(ctx, &storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UsePath:   cfg.S3.UsePath,
			Bucket:    cfg.S3.Bucket,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize object storage")
		}
		bucket = s3Storage
	}

	// Setup router
	router := api.SetupRouter(api.Dependencies{
		Ingest:   ingestService,
		Search:   searchService,
		Records:  knowledgeRepo,
		Taxonomy: taxonomyRepo,
		Jobs:     jobRepo,
		Bucket:   bucket,
	}, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
