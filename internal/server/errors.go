package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/github"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/store"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/suggest"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type codedError interface {
	Code() string
}

// writeError maps the error taxonomy onto HTTP statuses. fallback names unexpected failures.
func (h *httpHandler) writeError(c *gin.Context, fallback string, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": fallback}

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		status = http.StatusUnauthorized
		body["error"] = "unauthorized"
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		body["error"] = "not_found"
	case errors.Is(err, github.ErrUpstreamAuth):
		status = http.StatusBadRequest
		body["error"] = "upstream_auth_failed"
		body["message"] = err.Error()
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
		body["error"] = "conflict"
	case errors.Is(err, suggest.ErrSuggestion):
		status = http.StatusBadGateway
		body["error"] = "suggestion_failed"
	}

	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("error_slug", body["error"].(string)), zap.Error(err))
	} else {
		h.logger.Info("request rejected", zap.Int("status", status), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, body)
}
