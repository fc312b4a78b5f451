package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/freshfoldapp/freshfold-backend/api/controllers"
	webhookcontrollers "github.com/freshfoldapp/freshfold-backend/api/controllers/webhooks"
	"github.com/freshfoldapp/freshfold-backend/api/middleware"
	"github.com/freshfoldapp/freshfold-backend/internal/orders"
	"github.com/freshfoldapp/freshfold-backend/internal/payments"
	"github.com/freshfoldapp/freshfold-backend/internal/reconcile"
	stripewebhook "github.com/freshfoldapp/freshfold-backend/internal/webhooks/stripe"
	"github.com/freshfoldapp/freshfold-backend/pkg/config"
	"github.com/freshfoldapp/freshfold-backend/pkg/logger"
	pkgstripe "github.com/freshfoldapp/freshfold-backend/pkg/stripe"
)

type pinger interface {
	Ping(context.Context) error
}

type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            pinger
	Redis         pinger
	StripeClient  *pkgstripe.Client
	OrdersService orders.Service
	Payments      payments.Service
	Engine        *reconcile.Engine
	WebhookSvc    *stripewebhook.Service
	WebhookGuard  *stripewebhook.IdempotencyGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.WebhookSvc, deps.StripeClient, deps.WebhookGuard, logg))
	})

	// The browser lands here from hosted checkout without a bearer
	// token; the handler authenticates via the processor session id.
	r.Get("/api/v1/payments/complete", controllers.PaymentRedirect(deps.Engine, cfg.JWT, cfg.Stripe, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderID}", controllers.GetOrder(deps.OrdersService, logg))
			r.Post("/{orderID}/payments", controllers.InitiatePayment(deps.Payments, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Patch("/orders/{orderID}/status", controllers.UpdateOrderStatus(deps.Engine, logg))
		r.Post("/payments/{paymentID}/refund", controllers.RefundPayment(deps.Engine, logg))
	})

	return r
}
