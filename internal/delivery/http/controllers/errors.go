package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	h "trpgscheduler/internal/delivery/http/helpers"
	"trpgscheduler/internal/domain"
)

// writeDomainError maps a service error onto the API envelope. Anything not
// in the domain taxonomy is logged and surfaced as a 500.
func writeDomainError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		h.WriteJSONError(w, http.StatusBadRequest, h.ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid credentials")
	case errors.Is(err, domain.ErrForbidden):
		h.WriteJSONError(w, http.StatusForbidden, h.ErrCodeForbidden, "not allowed")
	case errors.Is(err, domain.ErrNotFound):
		h.WriteJSONError(w, http.StatusNotFound, h.ErrCodeNotFound, "not found")
	case errors.Is(err, domain.ErrStaleConfirmation):
		h.WriteJSONError(w, http.StatusConflict, h.ErrCodeStaleConfirmation, "availability changed, pick another date")
	case errors.Is(err, domain.ErrPreconditionNotMet):
		h.WriteJSONError(w, http.StatusConflict, h.ErrCodePreconditionFailed, err.Error())
	case errors.Is(err, domain.ErrConflictExhausted), errors.Is(err, domain.ErrConflict):
		h.WriteJSONError(w, http.StatusConflict, h.ErrCodeConflict, "concurrent update, retry")
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		h.WriteJSONError(w, http.StatusInternalServerError, h.ErrCodeInternalError, err.Error())
	}
}
