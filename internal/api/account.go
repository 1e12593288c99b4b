package api

import (
	"fmt"
	"net/http"
	"strings"

	"dds-registration/internal/identity"
	"dds-registration/internal/models"
)

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.Identity.GetProfile(r.Context(), caller(r).ID)
	if err != nil {
		h.writeError(w, r, "GetProfile", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Profile retrieved", user)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req identity.ProfileUpdate
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "UpdateProfile", err)
		return
	}
	user, err := h.Identity.UpdateProfile(r.Context(), caller(r), req)
	if err != nil {
		h.writeError(w, r, "UpdateProfile", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Profile updated", user)
}

func (h *Handler) GetMembership(w http.ResponseWriter, r *http.Request) {
	status, err := h.Memberships.Get(r.Context(), caller(r))
	if err != nil {
		h.writeError(w, r, "GetMembership", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Membership retrieved", status)
}

type renewalResponse struct {
	Membership *models.Membership `json:"membership"`
	Payment    *models.Payment    `json:"payment"`
}

func (h *Handler) StartRenewal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MembershipType string `json:"membership_type"`
		PaymentMethod  string `json:"payment_method"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "StartRenewal", err)
		return
	}
	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.writeError(w, r, "StartRenewal", err)
		return
	}
	user := caller(r)
	membershipType := models.MembershipType(strings.ToUpper(strings.TrimSpace(req.MembershipType)))
	h.Logger.Info("API", fmt.Sprintf("StartRenewal: user=%d type=%s method=%s", user.ID, membershipType, method))

	m, p, err := h.Memberships.StartRenewal(r.Context(), user, membershipType, method)
	if err != nil {
		h.writeError(w, r, "StartRenewal", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, "Membership renewal started", renewalResponse{Membership: m, Payment: p})
}
