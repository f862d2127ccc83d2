package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sherlock-kb/sherlock/internal/apperr"
)

// respondError writes a JSON error response with the status implied by the
// error's tag.
func respondError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error": err.Error(),
	})
}
