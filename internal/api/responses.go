package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"researchdao/internal/storage"
)

type errorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

func writeError(c *gin.Context, status int, message string, details interface{}) {
	c.AbortWithStatusJSON(status, errorResponse{Error: message, Details: details})
}

// writeStoreError maps persistence errors to HTTP statuses.
func (s *Server) writeStoreError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(c, http.StatusNotFound, "not found", nil)
	case errors.Is(err, storage.ErrConflict):
		writeError(c, http.StatusConflict, "already exists", nil)
	default:
		s.logger.Error(op+" failed",
			zap.String("request_id", requestIDFrom(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		writeError(c, http.StatusInternalServerError, "internal error", nil)
	}
}
