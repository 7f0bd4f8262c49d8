package helpers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"potluck/internal/domain"
)

// StatusFor maps a service error to its HTTP status and envelope code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusConflict, ErrCodeCapacityExceeded
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusConflict, ErrCodeQuotaExceeded
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrProtectedIdentity):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, domain.ErrTransientStore), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// WriteServiceError writes err in the envelope. Unexpected failures are
// logged and their detail is not echoed to the caller.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	WriteJSONError(w, status, code, msg)
}
