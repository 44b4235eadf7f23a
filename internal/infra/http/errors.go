package http

import (
	"errors"
	"net/http"
	"time"

	"storegate/internal/domain"
	"storegate/internal/infra/auth/rbac"
	"storegate/internal/log"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON shape every non-2xx response carries (spec §7).
type ErrorBody struct {
	Status      int               `json:"status"`
	Error       string            `json:"error"`
	Message     string            `json:"message"`
	Path        string            `json:"path"`
	Timestamp   string            `json:"timestamp"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// WriteError maps a domain error to the HTTP status and body spec §7
// prescribes. Only fatal errors are surfaced without detail; everything
// else carries the underlying message since none of it is sensitive.
func WriteError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if code == "fatal" {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("internal error")
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorBody{
		Status:    status,
		Error:     code,
		Message:   message,
		Path:      c.Request.URL.Path,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not-found"
	case errors.Is(err, domain.ErrCASConflict):
		return http.StatusConflict, "cas-conflict"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrUnsatisfiableRange):
		return http.StatusRequestedRangeNotSatisfiable, "unsatisfiable-range"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "auth"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "auth"
	default:
		var authz *rbac.AuthzError
		if errors.As(err, &authz) {
			return http.StatusForbidden, "auth"
		}
		return http.StatusInternalServerError, "fatal"
	}
}
