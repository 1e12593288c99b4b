package api

import (
	"fmt"
	"net/http"
	"strconv"

	"dds-registration/internal/analytics"
	"dds-registration/internal/models"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) EventReport(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.Logger.Info("API", fmt.Sprintf("EventReport: code=%s", code))

	report, err := h.Analytics.GetEventReport(r.Context(), caller(r), code)
	if err != nil {
		h.writeError(w, r, "EventReport", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Report generated", report)
}

// EventRegistrations accepts status, sort, desc, limit and offset query parameters.
func (h *Handler) EventRegistrations(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	query := r.URL.Query()

	var options analytics.EventRegistrationOptions
	if raw := query.Get("status"); raw != "" {
		status, err := models.ParseRegistrationStatus(raw)
		if err != nil {
			h.writeError(w, r, "EventRegistrations", err)
			return
		}
		options.Status = status
	}
	options.SortBy = query.Get("sort")
	options.SortDesc = query.Get("desc") == "true"
	for name, dst := range map[string]*int{"limit": &options.Limit, "offset": &options.Offset} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, "EventRegistrations", models.NewValidationError(name, "must be a non-negative number"))
			return
		}
		*dst = n
	}

	rows, err := h.Analytics.GetEventRegistrations(r.Context(), caller(r), code, options)
	if err != nil {
		h.writeError(w, r, "EventRegistrations", err)
		return
	}
	h.writeJSON(w, http.StatusOK, fmt.Sprintf("%d registrations", len(rows)), rows)
}
