package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/community-market-backend/api/routes"
	"github.com/angelmondragon/community-market-backend/internal/escalations"
	"github.com/angelmondragon/community-market-backend/internal/ledger"
	"github.com/angelmondragon/community-market-backend/internal/orders"
	"github.com/angelmondragon/community-market-backend/internal/payments"
	stripewebhook "github.com/angelmondragon/community-market-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/community-market-backend/pkg/config"
	"github.com/angelmondragon/community-market-backend/pkg/db"
	"github.com/angelmondragon/community-market-backend/pkg/instance"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
	"github.com/angelmondragon/community-market-backend/pkg/metrics"
	"github.com/angelmondragon/community-market-backend/pkg/migrate"
	"github.com/angelmondragon/community-market-backend/pkg/outbox"
	"github.com/angelmondragon/community-market-backend/pkg/redis"
	"github.com/angelmondragon/community-market-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := buildStripeClient(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	svcs, err := buildServices(cfg, logg, dbClient, redisClient, stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     instance.GetID(),
		"stripe_env":   stripeClient.Environment(),
		"verifies_sig": stripeClient.VerifiesSignatures(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, stripeClient, svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

// buildStripeClient returns a full API client when a key is configured and a
// verify-only client otherwise, so the webhook route always has a verifier.
func buildStripeClient(cfg *config.Config, logg *logger.Logger) (*stripe.Client, error) {
	if cfg.Stripe.APIKey == "" {
		return stripe.NewWebhookVerifier(cfg.Stripe.Secret), nil
	}
	return stripe.NewClient(context.Background(), cfg.Stripe, logg)
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, stripeClient *stripe.Client) (routes.Services, error) {
	gormDB := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(gormDB), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		return routes.Services{}, fmt.Errorf("ledger service: %w", err)
	}

	ordersRepo := orders.NewRepository(gormDB)
	ordersSvc, err := orders.NewService(ordersRepo, dbClient, emitter, ledgerSvc)
	if err != nil {
		return routes.Services{}, fmt.Errorf("orders service: %w", err)
	}

	escalationsSvc, err := escalations.NewService(escalations.NewRepository(gormDB), ordersRepo, ordersSvc, ledgerSvc, dbClient, emitter)
	if err != nil {
		return routes.Services{}, fmt.Errorf("escalations service: %w", err)
	}

	var stripeAPI payments.StripeAPI
	if cfg.Stripe.APIKey != "" {
		stripeAPI = stripeClient
	}
	providers := payments.ConfiguredProviders(cfg.Payments, stripeAPI)
	if len(providers) == 0 {
		logg.Warn(context.Background(), "no payment provider enabled, payment intents will be rejected")
	}
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	paymentsRepo := payments.NewRepository(gormDB)

	intents, err := payments.NewIntentFactory(paymentsRepo, providers, cfg.Payments, logg)
	if err != nil {
		return routes.Services{}, fmt.Errorf("intent factory: %w", err)
	}
	confirmations, err := payments.NewConfirmationService(payments.ConfirmationParams{
		Repository: paymentsRepo,
		Ledger:     ledgerSvc,
		Tx:         dbClient,
		Outbox:     emitter,
		Providers:  providers,
		Config:     cfg.Payments,
		Metrics:    paymentMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, fmt.Errorf("confirmation service: %w", err)
	}
	reconciler, err := payments.NewReconciler(paymentsRepo, confirmations, providers, cfg.Payments, paymentMetrics, logg)
	if err != nil {
		return routes.Services{}, fmt.Errorf("reconciler: %w", err)
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Transactions: paymentsRepo,
		Settler:      confirmations,
		Metrics:      paymentMetrics,
		Logger:       logg,
	})
	if err != nil {
		return routes.Services{}, fmt.Errorf("stripe webhook service: %w", err)
	}
	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL, "stripe")
	if err != nil {
		return routes.Services{}, fmt.Errorf("stripe webhook guard: %w", err)
	}

	return routes.Services{
		Orders:       ordersSvc,
		Escalations:  escalationsSvc,
		Intents:      intents,
		Confirmation: confirmations,
		Reconciler:   reconciler,
		Ledger:       ledgerSvc,
		StripeEvents: webhookSvc,
		StripeGuard:  guard,
	}, nil
}
