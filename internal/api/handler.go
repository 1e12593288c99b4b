// Package api exposes the registration services over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"dds-registration/internal/analytics"
	"dds-registration/internal/auth"
	"dds-registration/internal/catalog"
	"dds-registration/internal/documents"
	"dds-registration/internal/identity"
	"dds-registration/internal/logger"
	"dds-registration/internal/membership"
	"dds-registration/internal/models"
	"dds-registration/internal/payment"
	"dds-registration/internal/registration"
	"dds-registration/internal/sse"
	"dds-registration/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	Identity      *identity.Service
	Catalog       *catalog.Service
	Registrations *registration.Service
	Memberships   *membership.Service
	Payments      *payment.Service
	Analytics     *analytics.Service
	Feed          *sse.RegistrationFeed
	Receipts      *documents.QRGenerator
	Logger        *logger.Logger
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(utils.SuccessResponse(message, data)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

// statusFor maps domain errors to HTTP status codes and a message that is
// safe to show to the caller.
func statusFor(err error) (int, string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, models.ErrCapacityExceeded):
		return http.StatusConflict, "The event is fully booked"
	case errors.Is(err, models.ErrDuplicateActiveRegistration):
		return http.StatusConflict, "You are already registered for this event"
	case errors.Is(err, models.ErrRegistrationClosed):
		return http.StatusConflict, "Registration for this event is closed"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrOptionInUse):
		return http.StatusConflict, "The option is used by registrations"
	case errors.Is(err, models.ErrEventInUse):
		return http.StatusConflict, "The event has registrations"
	case errors.Is(err, models.ErrDuplicateEmail):
		return http.StatusConflict, "The email address is already in use"
	case errors.Is(err, payment.ErrChargeInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrExternalService):
		return http.StatusBadGateway, "A payment or mail provider is unavailable, please try again later"
	}
	return http.StatusInternalServerError, "Something went wrong, please contact support"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %s failed: %v", r.Method, r.URL.Path, op, err))
	} else {
		h.Logger.Info("API", fmt.Sprintf("%s %s: %s rejected: %v", r.Method, r.URL.Path, op, err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(utils.ErrorResponse(message, http.StatusText(status)))
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return models.NewValidationError("body", "invalid JSON: %v", err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s %q: %w", name, chi.URLParam(r, name), models.ErrNotFound)
	}
	return id, nil
}

// caller is the authenticated user; routes using it sit behind auth.Middleware.
func caller(r *http.Request) *models.User {
	return auth.UserFrom(r.Context())
}

// RequestLogger logs every request with the API category.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).String())
		})
	}
}
