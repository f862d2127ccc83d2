package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sherlock-kb/sherlock/internal/service"
)

// TaxonomyHandler serves the stored category hierarchy.
type TaxonomyHandler struct {
	taxonomy service.TaxonomyStore
}

// NewTaxonomyHandler creates a new taxonomy handler.
func NewTaxonomyHandler(taxonomy service.TaxonomyStore) *TaxonomyHandler {
	return &TaxonomyHandler{taxonomy: taxonomy}
}

// Get handles GET /api/v1/taxonomy.
func (h *TaxonomyHandler) Get(c *gin.Context) {
	config, err := h.taxonomy.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, config)
}

// Categories handles GET /api/v1/categories, returning just the top-level
// category names.
func (h *TaxonomyHandler) Categories(c *gin.Context) {
	config, err := h.taxonomy.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	names := make([]string, 0, len(config.Categories))
	for _, cat := range config.Categories {
		names = append(names, cat.Name)
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": names,
	})
}
