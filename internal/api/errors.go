package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/internal/registry"
)

// errorName maps an error to its taxonomy name for response bodies.
func errorName(err error) string {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.DatabaseNotFoundError
		corruptErr    *domain.DatabaseCorruptError
		formatErr     *domain.UnsupportedFormatError
	)

	switch {
	case errors.As(err, &validationErr):
		return "validation_error"
	case errors.As(err, &notFoundErr):
		return "database_not_found"
	case errors.As(err, &corruptErr):
		return "database_corrupt"
	case errors.As(err, &formatErr):
		return "unsupported_format"
	case errors.Is(err, domain.ErrSearchInProgress):
		return "search_in_progress"
	case errors.Is(err, registry.ErrBusy):
		return "registry_busy"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCancelled):
		return "cancelled"
	default:
		return "internal_error"
	}
}

// statusForError maps an error to an HTTP status code. Request-shaped
// failures are the caller's fault; a busy database slot or search slot is a
// conflict, not a bad request.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrSearchInProgress):
		return http.StatusConflict
	case errors.Is(err, registry.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsRequestError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders an error as a JSON body with the taxonomy name.
func (s *Server) writeError(c *gin.Context, err error) {
	code := statusForError(err)
	if code >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	s.writeErrorStatus(c, err, code)
}

// writeErrorStatus renders err with a fixed status, for routes where the
// path parameter addresses the resource itself and an unknown ref means 404.
func (s *Server) writeErrorStatus(c *gin.Context, err error, code int) {
	c.JSON(code, gin.H{
		"error":          errorName(err),
		"message":        err.Error(),
		"correlation_id": c.GetString("correlation_id"),
	})
}
