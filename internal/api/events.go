package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"dds-registration/internal/models"
	"dds-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

type eventRequest struct {
	Code              string `json:"code"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	SuccessEmail      string `json:"success_email"`
	Public            *bool  `json:"public"`
	RegistrationOpen  string `json:"registration_open"`
	RegistrationClose string `json:"registration_close"`
	StartsAt          string `json:"starts_at"`
	RefundWindowDays  *int   `json:"refund_window_days"`
	MaxParticipants   *int   `json:"max_participants"`
}

// apply copies the set fields of req onto event.
func (req eventRequest) apply(event *models.Event) error {
	if req.Title != "" {
		event.Title = strings.TrimSpace(req.Title)
	}
	if req.Description != "" {
		event.Description = req.Description
	}
	if req.SuccessEmail != "" {
		event.SuccessEmail = req.SuccessEmail
	}
	if req.Public != nil {
		event.Public = *req.Public
	}
	if req.RefundWindowDays != nil {
		event.RefundWindowDays = *req.RefundWindowDays
	}
	if req.MaxParticipants != nil {
		event.MaxParticipants = *req.MaxParticipants
	}

	dates := []struct {
		field string
		raw   string
		set   func(time.Time)
	}{
		{"registration_open", req.RegistrationOpen, func(t time.Time) { event.RegistrationOpen = t }},
		{"registration_close", req.RegistrationClose, func(t time.Time) { event.RegistrationClose = t }},
		{"starts_at", req.StartsAt, func(t time.Time) { event.StartsAt = &t }},
	}
	for _, d := range dates {
		if d.raw == "" {
			continue
		}
		t, err := utils.ParseDate(d.raw)
		if err != nil {
			return models.NewValidationError(d.field, "must be a date like 2006-01-02")
		}
		d.set(t)
	}
	return nil
}

type optionRequest struct {
	Item     string  `json:"item"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Catalog.ListPublic(r.Context())
	if err != nil {
		h.writeError(w, r, "ListEvents", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Events retrieved", events)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.Logger.Info("API", fmt.Sprintf("GetEvent: code=%s", code))

	event, err := h.Catalog.GetByCode(r.Context(), code)
	if err != nil {
		h.writeError(w, r, "GetEvent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Event retrieved", event)
}

func (h *Handler) ListAllEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Catalog.ListAll(r.Context(), caller(r))
	if err != nil {
		h.writeError(w, r, "ListAllEvents", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Events retrieved", events)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "CreateEvent", err)
		return
	}
	event := &models.Event{
		Code:             strings.TrimSpace(req.Code),
		Public:           true,
		RefundWindowDays: models.DefaultRefundWindowDays,
	}
	if err := req.apply(event); err != nil {
		h.writeError(w, r, "CreateEvent", err)
		return
	}
	if err := h.Catalog.CreateEvent(r.Context(), caller(r), event); err != nil {
		h.writeError(w, r, "CreateEvent", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateEvent: code=%s", event.Code))
	h.writeJSON(w, http.StatusCreated, "Event created", event)
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req eventRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "UpdateEvent", err)
		return
	}

	// reject malformed dates before anything is stored
	if err := req.apply(&models.Event{}); err != nil {
		h.writeError(w, r, "UpdateEvent", err)
		return
	}
	event, err := h.Catalog.UpdateEvent(r.Context(), caller(r), code, func(e *models.Event) {
		_ = req.apply(e)
	})
	if err != nil {
		h.writeError(w, r, "UpdateEvent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Event updated", event)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.Catalog.DeleteEvent(r.Context(), caller(r), code); err != nil {
		h.writeError(w, r, "DeleteEvent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Event deleted", nil)
}

func (h *Handler) AddOption(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req optionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "AddOption", err)
		return
	}
	option := &models.RegistrationOption{Item: req.Item, Price: req.Price, Currency: req.Currency}
	if err := h.Catalog.AddOption(r.Context(), caller(r), code, option); err != nil {
		h.writeError(w, r, "AddOption", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, "Option added", option)
}

func (h *Handler) UpdateOption(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "UpdateOption", err)
		return
	}
	var req optionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "UpdateOption", err)
		return
	}
	option := &models.RegistrationOption{ID: id, Item: req.Item, Price: req.Price, Currency: req.Currency}
	if err := h.Catalog.UpdateOption(r.Context(), caller(r), option); err != nil {
		h.writeError(w, r, "UpdateOption", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Option updated", option)
}

func (h *Handler) DeleteOption(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "DeleteOption", err)
		return
	}
	if err := h.Catalog.DeleteOption(r.Context(), caller(r), id); err != nil {
		h.writeError(w, r, "DeleteOption", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Option deleted", nil)
}

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req struct {
		Message string `json:"message"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "PostMessage", err)
		return
	}
	msg, sent, err := h.Catalog.PostMessage(r.Context(), caller(r), code, req.Message)
	if err != nil {
		h.writeError(w, r, "PostMessage", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, fmt.Sprintf("Message sent to %d registrants", sent), msg)
}
