package api

import (
	"fmt"
	"net/http"

	"dds-registration/internal/models"

	"github.com/go-chi/chi/v5"
)

type billingResponse struct {
	Registration *models.Registration `json:"registration"`
	Payment      *models.Payment      `json:"payment,omitempty"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req struct {
		OptionID int64 `json:"option_id"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "Register", err)
		return
	}
	user := caller(r)
	h.Logger.Info("API", fmt.Sprintf("Register: event=%s option=%d user=%d", code, req.OptionID, user.ID))

	reg, err := h.Registrations.Register(r.Context(), user, code, req.OptionID)
	if err != nil {
		h.writeError(w, r, "Register", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, "Registration submitted", reg)
}

func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Registrations.ListForUser(r.Context(), caller(r))
	if err != nil {
		h.writeError(w, r, "ListRegistrations", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Registrations retrieved", regs)
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "GetRegistration", err)
		return
	}
	reg, err := h.Registrations.Get(r.Context(), caller(r), id)
	if err != nil {
		h.writeError(w, r, "GetRegistration", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Registration retrieved", reg)
}

func (h *Handler) SubmitBilling(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "SubmitBilling", err)
		return
	}
	var req struct {
		PaymentMethod    string `json:"payment_method"`
		ExtraInvoiceText string `json:"extra_invoice_text"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "SubmitBilling", err)
		return
	}
	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.writeError(w, r, "SubmitBilling", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("SubmitBilling: registration=%d method=%s", id, method))

	reg, p, err := h.Registrations.SubmitBilling(r.Context(), caller(r), id, method, req.ExtraInvoiceText)
	if err != nil {
		h.writeError(w, r, "SubmitBilling", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Billing submitted", billingResponse{Registration: reg, Payment: p})
}

// CancelRegistration withdraws the caller's own registration, or cancels
// anyone's when the caller is staff.
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "CancelRegistration", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CancelRegistration: registration=%d", id))

	reg, err := h.Registrations.Cancel(r.Context(), caller(r), id)
	if err != nil {
		h.writeError(w, r, "CancelRegistration", err)
		return
	}
	h.writeJSON(w, http.StatusOK, fmt.Sprintf("Registration %s", reg.Status), reg)
}

func (h *Handler) ReviewRegistration(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "ReviewRegistration", err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "ReviewRegistration", err)
		return
	}
	status, err := models.ParseRegistrationStatus(req.Status)
	if err != nil {
		h.writeError(w, r, "ReviewRegistration", err)
		return
	}

	reg, err := h.Registrations.Review(r.Context(), caller(r), id, status)
	if err != nil {
		h.writeError(w, r, "ReviewRegistration", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Registration reviewed", reg)
}
