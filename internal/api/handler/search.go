package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sherlock-kb/sherlock/internal/service"
)

// SearchHandler handles semantic search endpoints.
type SearchHandler struct {
	search *service.SearchService
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query       string   `json:"query" binding:"required"`
	Limit       int      `json:"limit"`
	Threshold   *float32 `json:"threshold"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Topic       string   `json:"topic"`
}

// Search handles POST /api/v1/search.
// Parameters (JSON body):
//   - query: natural-language query text (required).
//   - limit: max results, clamped to the configured maximum.
//   - threshold: minimum similarity score override.
//   - category, subcategory, topic: taxonomy filters.
// Returns:
//   - 200 with scored results ordered by similarity.
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	results, err := h.search.Search(c.Request.Context(), service.SearchQuery{
		Query:       req.Query,
		Limit:       req.Limit,
		Threshold:   req.Threshold,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Topic:       req.Topic,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
	})
}
