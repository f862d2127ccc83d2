package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sherlock-kb/sherlock/internal/domain"
	"github.com/sherlock-kb/sherlock/internal/service"
)

// KnowledgeHandler handles knowledge record endpoints.
type KnowledgeHandler struct {
	records service.RecordStore
	ingest  *service.IngestService
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(records service.RecordStore, ingest *service.IngestService) *KnowledgeHandler {
	return &KnowledgeHandler{
		records: records,
		ingest:  ingest,
	}
}

// List handles GET /api/v1/knowledge.
// Parameters (query):
//   - category, subcategory, topic: taxonomy filters.
//   - status: record status filter (pending/processing/completed/failed).
//   - page, page_size: pagination (1-based page, page_size capped at 100).
func (h *KnowledgeHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	filters := domain.ListFilters{
		Category:    c.Query("category"),
		Subcategory: c.Query("subcategory"),
		Topic:       c.Query("topic"),
		Status:      domain.KnowledgeStatus(c.Query("status")),
		Limit:       pageSize,
		Offset:      (page - 1) * pageSize,
	}

	records, err := h.records.List(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     records,
		"count":     len(records),
		"page":      page,
		"page_size": pageSize,
	})
}

// Get handles GET /api/v1/knowledge/:id.
func (h *KnowledgeHandler) Get(c *gin.Context) {
	record, err := h.records.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// Retry handles POST /api/v1/knowledge/:id/retry.
func (h *KnowledgeHandler) Retry(c *gin.Context) {
	if err := h.ingest.RetryRecord(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id": c.Param("id"),
	})
}

type retryFailedRequest struct {
	Category string `json:"category"`
	Limit    int    `json:"limit"`
}

// RetryFailed handles POST /api/v1/knowledge/retry-failed.
func (h *KnowledgeHandler) RetryFailed(c *gin.Context) {
	var req retryFailedRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}
	}

	count, err := h.ingest.RetryAllFailed(c.Request.Context(), req.Category, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"retried": count,
	})
}

// Delete handles DELETE /api/v1/knowledge/:id.
func (h *KnowledgeHandler) Delete(c *gin.Context) {
	if err := h.ingest.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id": c.Param("id"),
	})
}
