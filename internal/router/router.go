package router

import (
	"net/http"

	"github.com/custodia-pay/custodia/internal/account"
	"github.com/custodia-pay/custodia/internal/activity"
	"github.com/custodia-pay/custodia/internal/dispute"
	"github.com/custodia-pay/custodia/internal/escrow"
	"github.com/custodia-pay/custodia/internal/middleware"
	"github.com/custodia-pay/custodia/internal/server"
	"github.com/custodia-pay/custodia/internal/webhook"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	Escrow   *escrow.Handler
	Dispute  *dispute.Handler
	Account  *account.Handler
	Activity *activity.Handler
	Webhook  *webhook.Handler
}

func NewRouter(s *server.Server, h *Handlers, limiter middleware.Limiter) *chi.Mux {
	r := chi.NewRouter()

	nrApp := s.LoggerService.GetApplication()
	mw := middleware.NewMiddlewares(s.Logger, nrApp, limiter)

	// Apply middleware in order
	r.Use(middleware.RequestID)
	r.Use(mw.Tracing.NewRelicMiddleware())
	r.Use(mw.Tracing.EnhanceTracing)
	r.Use(mw.ContextEnhancer.EnhanceContext)
	r.Use(mw.Global.RequestLogger)
	r.Use(mw.RateLimit.Limit)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.Escrow.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Escrow.Get)
				r.Delete("/", h.Escrow.Delete)
				r.Post("/join", h.Escrow.Join)
				r.Get("/payment-methods", h.Escrow.PaymentMethods)
				r.Post("/checkout", h.Escrow.Checkout)
				r.Post("/delivered", h.Escrow.MarkDelivered)
				r.Post("/validate", h.Escrow.Validate)
				r.Post("/cancel", h.Escrow.Cancel)
				r.Get("/activity", h.Activity.List)
			})
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Post("/", h.Dispute.Open)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Dispute.Get)
				r.Get("/proposals", h.Dispute.Proposals)
				r.Post("/proposals", h.Dispute.Propose)
				r.Post("/proposals/{proposalID}/accept", h.Dispute.Accept)
				r.Post("/proposals/{proposalID}/reject", h.Dispute.Reject)
				r.Post("/escalate", h.Dispute.Escalate)
				r.Post("/resolve", h.Dispute.Resolve)
			})
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.Account.Register)
			r.Get("/{sellerID}", h.Account.GetBySeller)
		})

		r.Post("/webhooks/gateway", h.Webhook.HandleWebhook)
	})

	return r
}
