package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"dds-registration/internal/models"
	"dds-registration/internal/payment"
)

// maxWebhookBody matches the limit Stripe documents for event payloads.
const maxWebhookBody = 65536

func (h *Handler) StartCardPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "StartCardPayment", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("StartCardPayment: payment=%d", id))

	card, err := h.Payments.StartCardPayment(r.Context(), id, caller(r))
	if err != nil {
		h.writeError(w, r, "StartCardPayment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Card payment started", card)
}

func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	h.document(w, r, false)
}

func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	h.document(w, r, true)
}

func (h *Handler) document(w http.ResponseWriter, r *http.Request, receipt bool) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "Document", err)
		return
	}
	p, pdf, err := h.Payments.Document(r.Context(), id, caller(r), receipt)
	if err != nil {
		h.writeError(w, r, "Document", err)
		return
	}

	kind := "invoice"
	if receipt {
		kind = "receipt"
	}
	name := fmt.Sprintf("%s-%s.pdf", kind, strings.TrimPrefix(p.InvoiceNo(), "#"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := w.Write(pdf); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Document: failed to write %s: %v", name, err))
	}
}

// MarkPaid records a bank transfer that staff matched to an invoice.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "MarkPaid", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("MarkPaid: payment=%d by %s", id, caller(r).Email))

	p, changed, err := h.Payments.ConfirmPayment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "MarkPaid", err)
		return
	}
	message := "Payment marked as paid"
	if !changed {
		message = "Payment was already paid"
	}
	h.writeJSON(w, http.StatusOK, message, p)
}

func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, "RefundPayment", err)
		return
	}
	p, err := h.Payments.Repo.GetPayment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "RefundPayment", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("RefundPayment: payment=%d by %s", id, caller(r).Email))

	if err := h.Payments.Refund(r.Context(), p); err != nil {
		h.writeError(w, r, "RefundPayment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Payment refunded", p)
}

// StripeWebhook handles webhook events from Stripe
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "StripeWebhook: received webhook event")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to read body: %v", err))
		http.Error(w, "Error reading request body", http.StatusServiceUnavailable)
		return
	}

	err = h.Payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to process webhook: %v", err))

		var webhookErr *payment.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("API", fmt.Sprintf("StripeWebhook: handling webhook error category=%s, status=%d",
				webhookErr.Category, webhookErr.StatusCode))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}

		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	h.Logger.Info("API", "StripeWebhook: successfully processed webhook event")
}

type receiptCheck struct {
	Valid     bool                 `json:"valid"`
	InvoiceNo string               `json:"invoice_no"`
	Status    models.PaymentStatus `json:"status"`
	Payment   *models.Payment      `json:"payment"`
}

// VerifyReceipt checks a scanned receipt code. A code is valid while the
// payment it names is still PAID.
func (h *Handler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, "VerifyReceipt", err)
		return
	}

	invoiceNo, paymentID, err := h.Receipts.VerifyReceipt(strings.TrimSpace(req.Code))
	if err != nil {
		h.Logger.LogSecurity("RECEIPT_VERIFY", fmt.Sprintf("Rejected receipt code: %v", err))
		h.writeError(w, r, "VerifyReceipt", models.NewValidationError("code", "not a receipt issued by this service"))
		return
	}
	p, err := h.Payments.Repo.GetPayment(r.Context(), paymentID)
	if err != nil {
		h.writeError(w, r, "VerifyReceipt", err)
		return
	}
	if p.InvoiceNo() != invoiceNo {
		h.writeError(w, r, "VerifyReceipt", models.NewValidationError("code", "receipt does not match payment %d", paymentID))
		return
	}

	check := receiptCheck{Valid: p.Status == models.PaymentPaid, InvoiceNo: invoiceNo, Status: p.Status, Payment: p}
	h.Logger.Info("API", fmt.Sprintf("VerifyReceipt: %s valid=%t", invoiceNo, check.Valid))
	h.writeJSON(w, http.StatusOK, "Receipt checked", check)
}
