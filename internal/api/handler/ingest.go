package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sherlock-kb/sherlock/internal/service"
)

// IngestHandler handles ingestion endpoints.
type IngestHandler struct {
	ingest  *service.IngestService
	bucket  service.ObjectSource
	jobs    service.JobStore
	records service.RecordStore
}

// NewIngestHandler creates a new ingest handler.
// Parameters:
//   - ingest: ingestion service instance.
//   - bucket: object storage source; nil disables bucket ingestion.
//   - jobs: job store for batch job lookups.
//   - records: record store for single-record status lookups.
// Returns:
//   - *IngestHandler: initialized handler.
func NewIngestHandler(ingest *service.IngestService, bucket service.ObjectSource, jobs service.JobStore, records service.RecordStore) *IngestHandler {
	return &IngestHandler{
		ingest:  ingest,
		bucket:  bucket,
		jobs:    jobs,
		records: records,
	}
}

type ingestURLRequest struct {
	URL string `json:"url" binding:"required"`
}

// IngestURL handles POST /api/v1/ingest/url.
func (h *IngestHandler) IngestURL(c *gin.Context) {
	var req ingestURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	id, err := h.ingest.IngestFromURL(c.Request.Context(), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id": id,
	})
}

// IngestUpload handles POST /api/v1/ingest/upload (multipart file upload).
func (h *IngestHandler) IngestUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing file: " + err.Error(),
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to open upload: " + err.Error(),
		})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read upload: " + err.Error(),
		})
		return
	}

	source := c.PostForm("source_url")
	if source == "" {
		source = "upload://" + file.Filename
	}

	id, err := h.ingest.IngestFromBytes(c.Request.Context(), data, source, file.Filename)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id": id,
	})
}

type ingestFolderRequest struct {
	Path string `json:"path" binding:"required"`
}

// IngestFolder handles POST /api/v1/ingest/folder.
func (h *IngestHandler) IngestFolder(c *gin.Context) {
	var req ingestFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	ids, err := h.ingest.IngestFromFolder(c.Request.Context(), req.Path)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"ids":   ids,
		"total": len(ids),
	})
}

type ingestBucketRequest struct {
	Prefix string `json:"prefix"`
}

// IngestBucket handles POST /api/v1/ingest/bucket.
func (h *IngestHandler) IngestBucket(c *gin.Context) {
	if h.bucket == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error": "Object storage is not configured",
		})
		return
	}

	var req ingestBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	jobID, err := h.ingest.IngestFromBucket(c.Request.Context(), h.bucket, req.Prefix)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": jobID,
	})
}

// GetJob handles GET /api/v1/ingest/jobs/:id.
func (h *IngestHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetStatus handles GET /api/v1/ingest/:id/status, the lightweight pipeline
// status probe for a single record.
func (h *IngestHandler) GetStatus(c *gin.Context) {
	record, err := h.records.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          record.ID,
		"status":      record.Status,
		"error":       record.LastError,
		"comments":    record.Comments,
		"retry_count": record.RetryCount,
	})
}
