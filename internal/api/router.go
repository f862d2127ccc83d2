package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sherlock-kb/sherlock/internal/api/handler"
	"github.com/sherlock-kb/sherlock/internal/api/middleware"
	"github.com/sherlock-kb/sherlock/internal/service"
)

// Dependencies bundles the collaborators the router wires into handlers.
type Dependencies struct {
	Ingest   *service.IngestService
	Search   *service.SearchService
	Records  service.RecordStore
	Taxonomy service.TaxonomyStore
	Jobs     service.JobStore
	Bucket   service.ObjectSource
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Dependencies, mode string, cors middleware.CORSConfig) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cors))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	ingestHandler := handler.NewIngestHandler(deps.Ingest, deps.Bucket, deps.Jobs, deps.Records)
	knowledgeHandler := handler.NewKnowledgeHandler(deps.Records, deps.Ingest)
	searchHandler := handler.NewSearchHandler(deps.Search)
	taxonomyHandler := handler.NewTaxonomyHandler(deps.Taxonomy)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Ingestion
		v1.POST("/ingest/url", ingestHandler.IngestURL)
		v1.POST("/ingest/upload", ingestHandler.IngestUpload)
		v1.POST("/ingest/folder", ingestHandler.IngestFolder)
		v1.POST("/ingest/bucket", ingestHandler.IngestBucket)
		v1.GET("/ingest/jobs/:id", ingestHandler.GetJob)
		v1.GET("/ingest/:id/status", ingestHandler.GetStatus)

		// Knowledge records
		v1.GET("/knowledge", knowledgeHandler.List)
		v1.GET("/knowledge/:id", knowledgeHandler.Get)
		v1.POST("/knowledge/:id/retry", knowledgeHandler.Retry)
		v1.POST("/knowledge/retry-failed", knowledgeHandler.RetryFailed)
		v1.DELETE("/knowledge/:id", knowledgeHandler.Delete)

		// Search
		v1.POST("/search", searchHandler.Search)

		// Taxonomy
		v1.GET("/taxonomy", taxonomyHandler.Get)
		v1.GET("/categories", taxonomyHandler.Categories)
	}

	return r
}
