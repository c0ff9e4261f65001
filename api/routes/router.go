package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/community-market-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/community-market-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/community-market-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/community-market-backend/api/controllers/webhooks"
	"github.com/angelmondragon/community-market-backend/api/middleware"
	"github.com/angelmondragon/community-market-backend/internal/escalations"
	"github.com/angelmondragon/community-market-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/community-market-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/community-market-backend/pkg/config"
	"github.com/angelmondragon/community-market-backend/pkg/db"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
	"github.com/angelmondragon/community-market-backend/pkg/redis"
	"github.com/angelmondragon/community-market-backend/pkg/stripe"
)

// RedisStore is the slice of the Redis client the HTTP layer needs:
// request idempotency, rate limiting, and readiness.
type RedisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Services groups the domain services mounted under /api/v1.
type Services struct {
	Orders       orders.Service
	Escalations  escalations.Service
	Intents      paymentcontrollers.IntentCreator
	Confirmation paymentcontrollers.PaymentConfirmer
	Reconciler   paymentcontrollers.PendingResolver
	Ledger       paymentcontrollers.LedgerReader
	StripeEvents *stripewebhook.Service
	StripeGuard  *stripewebhook.IdempotencyGuard
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	stripeClient *stripe.Client,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	intentPolicy := middleware.NewRateLimitPolicy(
		"payment-intents",
		cfg.Payments.IntentRateLimit,
		cfg.Payments.IntentRateWindow,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisStore))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		// Typed nils must not reach the handler's nil checks as non-nil interfaces.
		var (
			webhookService webhookcontrollers.StripeWebhookService
			guard          webhookcontrollers.StripeWebhookGuard
		)
		if svcs.StripeEvents != nil {
			webhookService = svcs.StripeEvents
		}
		if svcs.StripeGuard != nil {
			guard = svcs.StripeGuard
		}
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookService, stripeClient, guard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisStore, cfg.Eventing.RequestIdempotencyTTL, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.CreateOrder(svcs.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(svcs.Orders, logg))
				r.Post("/accept", ordercontrollers.Accept(svcs.Orders, logg))
				r.Post("/reject", ordercontrollers.Reject(svcs.Orders, logg))
				r.Post("/modify", ordercontrollers.Modify(svcs.Orders, logg))
				r.Post("/cancel", ordercontrollers.Cancel(svcs.Orders, logg))
				r.Post("/suggest-date", ordercontrollers.SuggestDate(svcs.Orders, logg))
				r.Post("/suggest-quantity", ordercontrollers.SuggestQuantity(svcs.Orders, logg))
				r.Post("/mark-delivered", ordercontrollers.MarkDelivered(svcs.Orders, logg))
				r.Post("/confirm-delivery", ordercontrollers.ConfirmDelivery(svcs.Orders, logg))
				r.Post("/rate", ordercontrollers.Rate(svcs.Orders, logg))

				r.Get("/dispute", ordercontrollers.DisputeDetail(svcs.Escalations, logg))
				r.Post("/dispute", ordercontrollers.Dispute(svcs.Escalations, logg))
				r.Post("/refund-offers", ordercontrollers.MakeRefundOffer(svcs.Escalations, logg))
				r.Post("/refund-offers/{offerId}/accept", ordercontrollers.AcceptRefundOffer(svcs.Escalations, logg))
				r.Post("/escalate", ordercontrollers.Escalate(svcs.Escalations, logg))
				r.Post("/resolve", ordercontrollers.Resolve(svcs.Escalations, logg))
			})
		})
		r.Post("/refund-offers/{offerId}/reject", ordercontrollers.RejectRefundOffer(svcs.Escalations, logg))

		r.Route("/payments", func(r chi.Router) {
			r.With(middleware.RateLimit(intentPolicy, redisStore, logg)).
				Post("/intents", paymentcontrollers.CreatePaymentIntent(svcs.Intents, logg))
			r.Post("/confirm", paymentcontrollers.ConfirmPayment(svcs.Confirmation, logg))
			r.Get("/pending/resolve", paymentcontrollers.ResolvePendingPayments(svcs.Reconciler, logg))
			r.Post("/pending/resolve", paymentcontrollers.ResolvePendingPayments(svcs.Reconciler, logg))
		})

		r.Route("/points", func(r chi.Router) {
			r.Get("/balance", paymentcontrollers.PointsBalance(svcs.Ledger, logg))
			r.Get("/ledger", paymentcontrollers.PointsLedger(svcs.Ledger, logg))
		})
	})

	return r
}
