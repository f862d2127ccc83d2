package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "sherlock-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	url := flag.String("url", "", "Ingest a single image from a URL")
	folder := flag.String("folder", "", "Ingest every supported image in a local folder")
	bucket := flag.String("bucket", "", "Ingest objects from the configured bucket under this prefix (use '/' for all)")
	retryFailed := flag.Bool("retry-failed", false, "Re-queue failed records instead of ingesting new ones")
	category := flag.String("category", "", "Restrict -retry-failed to one category")
	limit := flag.Int("limit", 100, "Maximum number of failed records to re-queue")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *url == "" && *folder == "" && *bucket == "" && !*retryFailed {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
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

	// Cancel in-flight work on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	switch {
	case *retryFailed:
		count, err := ingestService.RetryAllFailed(ctx, *category, *limit)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to re-queue failed records")
		}
		appLogger.WithField("count", count).Info("Re-queued failed records")

	case *url != "":
		id, err := ingestService.IngestFromURL(ctx, *url)
		if err != nil {
			appLogger.WithError(err).Fatal("Ingestion failed")
		}
		appLogger.WithField("id", id).Info("Ingestion finished")

	case *folder != "":
		ids, err := ingestService.IngestFromFolder(ctx, *folder)
		if err != nil {
			appLogger.WithError(err).Fatal("Folder ingestion failed")
		}
		appLogger.WithField("count", len(ids)).Info("Folder ingestion finished")

	case *bucket != "":
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

		prefix := *bucket
		if prefix == "/" {
			prefix = ""
		}
		jobID, err := ingestService.IngestFromBucket(ctx, s3Storage, prefix)
		if err != nil {
			appLogger.WithError(err).Fatal("Bucket ingestion failed")
		}

		job, err := jobRepo.GetByID(ctx, jobID)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to load job status")
		}
		appLogger.WithFields(logger.Fields{
			"job_id":    job.ID,
			"total":     job.TotalItems,
			"processed": job.ProcessedItems,
			"failed":    job.FailedItems,
			"status":    job.Status,
		}).Info("Bucket ingestion finished")
	}
}
