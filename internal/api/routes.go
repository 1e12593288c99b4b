package api

import (
	"fmt"
	"net/http"

	"dds-registration/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the public, member and staff routes. authenticate must put
// the caller into the request context, see auth.Middleware. CORS is only
// enabled when origins is not empty.
func NewRouter(h *Handler, authenticate func(http.Handler) http.Handler, metrics http.Handler, origins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.Logger))
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		h.Logger.Info("ROUTER", fmt.Sprintf("CORS enabled for %v", origins))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.Post("/webhooks/stripe", h.StripeWebhook)
	r.Get("/api/events", h.ListEvents)
	r.Get("/api/events/{code}", h.GetEvent)
	h.Logger.Info("ROUTER", "Public routes registered")

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", h.GetProfile)
			r.Put("/me", h.UpdateProfile)

			r.Post("/events/{code}/registrations", h.Register)
			r.Route("/registrations", func(r chi.Router) {
				r.Get("/", h.ListRegistrations)
				r.Get("/{id}", h.GetRegistration)
				r.Post("/{id}/billing", h.SubmitBilling)
				r.Post("/{id}/cancel", h.CancelRegistration)
			})

			r.Get("/membership", h.GetMembership)
			r.Post("/membership/renewals", h.StartRenewal)

			r.Route("/payments/{id}", func(r chi.Router) {
				r.Post("/card", h.StartCardPayment)
				r.Get("/invoice.pdf", h.Invoice)
				r.Get("/receipt.pdf", h.Receipt)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireStaff)

				r.Get("/events", h.ListAllEvents)
				r.Post("/events", h.CreateEvent)
				r.Put("/events/{code}", h.UpdateEvent)
				r.Delete("/events/{code}", h.DeleteEvent)
				r.Post("/events/{code}/options", h.AddOption)
				r.Post("/events/{code}/messages", h.PostMessage)
				r.Get("/events/{code}/report", h.EventReport)
				r.Get("/events/{code}/registrations", h.EventRegistrations)
				r.Get("/events/{code}/stream", h.StreamRegistrations)
				r.Put("/options/{id}", h.UpdateOption)
				r.Delete("/options/{id}", h.DeleteOption)

				r.Post("/registrations/{id}/review", h.ReviewRegistration)
				r.Post("/registrations/{id}/cancel", h.CancelRegistration)

				r.Post("/payments/{id}/mark-paid", h.MarkPaid)
				r.Post("/payments/{id}/refund", h.RefundPayment)
				r.Post("/receipts/verify", h.VerifyReceipt)
			})
		})
	})
	h.Logger.Info("ROUTER", "Authenticated routes registered")

	return r
}
