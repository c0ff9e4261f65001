package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/internal/ledger"
	"github.com/angelmondragon/community-market-backend/internal/testdb"
	"github.com/angelmondragon/community-market-backend/pkg/config"
	"github.com/angelmondragon/community-market-backend/pkg/db"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
	"github.com/angelmondragon/community-market-backend/pkg/metrics"
	"github.com/angelmondragon/community-market-backend/pkg/outbox"
)

type stubStripe struct {
	mu      sync.Mutex
	status  stripe.PaymentIntentStatus
	err     error
	created []*stripe.PaymentIntentParams
}

func (s *stubStripe) CreatePaymentIntent(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, params)
	return &stripe.PaymentIntent{ID: "pi_" + uuid.NewString(), ClientSecret: "pi_secret_test"}, nil
}

func (s *stubStripe) GetPaymentIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &stripe.PaymentIntent{ID: id, Status: s.status}, nil
}

type brokenStatusRepo struct {
	Repository
}

func (b brokenStatusRepo) MarkSucceeded(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, errors.New("connection reset")
}

type harness struct {
	conn       *gorm.DB
	repo       Repository
	ledger     ledger.Service
	stripe     *stubStripe
	providers  Providers
	cfg        config.PaymentsConfig
	registry   *prometheus.Registry
	metrics    *metrics.PaymentMetrics
	logg       *logger.Logger
	intents    *IntentFactory
	confirmer  *ConfirmationService
	reconciler *Reconciler
	user       uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := testdb.Open(t)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)

	h := &harness{
		conn:     conn,
		repo:     NewRepository(conn),
		ledger:   ledgerSvc,
		stripe:   &stubStripe{status: stripe.PaymentIntentStatusProcessing},
		registry: prometheus.NewRegistry(),
		logg:     logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard}),
		user:     uuid.New(),
		cfg: config.PaymentsConfig{
			MinAmountCents:  100,
			MaxAmountCents:  50000,
			MockEnabled:     true,
			DefaultProvider: "mock",
			StaleAfter:      24 * time.Hour,
			ProviderTimeout: time.Second,
		},
	}
	h.metrics = metrics.NewPaymentMetrics(h.registry)
	h.providers = NewProviders(NewMockProvider(), NewStripeProvider(h.stripe))
	h.build(t, h.repo)
	return h
}

func (h *harness) build(t *testing.T, repo Repository) {
	t.Helper()
	var err error
	h.intents, err = NewIntentFactory(repo, h.providers, h.cfg, h.logg)
	require.NoError(t, err)
	h.confirmer, err = NewConfirmationService(ConfirmationParams{
		Repository: repo,
		Ledger:     h.ledger,
		Tx:         db.Wrap(h.conn),
		Outbox:     outbox.NewService(outbox.NewRepository(h.conn), nil),
		Providers:  h.providers,
		Config:     h.cfg,
		Metrics:    h.metrics,
		Logger:     h.logg,
	})
	require.NoError(t, err)
	h.reconciler, err = NewReconciler(repo, h.confirmer, h.providers, h.cfg, h.metrics, h.logg)
	require.NoError(t, err)
}

func (h *harness) seedPending(t *testing.T, provider enums.PaymentProvider, points int64, age time.Duration) *models.PaymentTransaction {
	t.Helper()
	external := mockIntentPrefix + uuid.NewString()
	if provider == enums.PaymentProviderStripe {
		external = "pi_" + uuid.NewString()
	}
	txn := &models.PaymentTransaction{
		ID:                   uuid.New(),
		UserID:               h.user,
		Provider:             provider,
		ExternalIntentID:     external,
		ExternalClientSecret: external + "_secret_x",
		AmountCents:          499,
		PointsAmount:         points,
		Status:               enums.PaymentTransactionPending,
		CreatedAt:            time.Now().UTC().Add(-age),
	}
	require.NoError(t, h.repo.Create(context.Background(), txn))
	return txn
}

func (h *harness) ledgerRows(t *testing.T, txnID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.PointLedgerEntry{}).
		Where("type = ? AND reference_id = ?", enums.PointLedgerPurchase, txnID).
		Count(&count).Error)
	return count
}

func (h *harness) counter(t *testing.T, name string) float64 {
	t.Helper()
	mfs, err := h.registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestMockPurchaseCreditsOnceAndReportsReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	intent, err := h.intents.CreateIntent(ctx, CreateIntentInput{UserID: h.user, AmountCents: 499, PointsAmount: 100})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentProviderMock, intent.Provider)
	assert.Equal(t, "4.99", intent.Amount)
	assert.Contains(t, intent.ClientSecret, "_secret_")

	first, err := h.confirmer.ConfirmForUser(ctx, h.user, intent.TransactionID)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.False(t, first.AlreadyProcessed)
	assert.Equal(t, int64(100), first.PointsAmount)
	assert.Equal(t, int64(100), first.NewBalance)

	second, err := h.confirmer.Confirm(ctx, intent.TransactionID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.LedgerEntryID, second.LedgerEntryID)
	assert.Equal(t, int64(100), second.NewBalance)

	balance, err := h.ledger.Balance(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
	assert.Equal(t, int64(1), h.ledgerRows(t, intent.TransactionID))

	txn, err := h.repo.FindByID(ctx, intent.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentTransactionSucceeded, txn.Status)
	require.NotNil(t, txn.PointLedgerID)
	assert.Equal(t, first.LedgerEntryID, *txn.PointLedgerID)

	var events int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPointsPurchased).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestConcurrentConfirmationsCreditOnce(t *testing.T) {
	h := newHarness(t)
	txn := h.seedPending(t, enums.PaymentProviderMock, 250, time.Minute)

	var wg sync.WaitGroup
	results := make([]*ConfirmResult, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.confirmer.Confirm(context.Background(), txn.ID)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(250), results[i].NewBalance)
		if !results[i].AlreadyProcessed {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, int64(1), h.ledgerRows(t, txn.ID))
}

func TestConfirmRepairsCreditedButPendingRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedPending(t, enums.PaymentProviderMock, 40, time.Minute)

	var entry *models.PointLedgerEntry
	require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
		ref := txn.ID
		var err error
		entry, err = h.ledger.Append(ctx, tx, ledger.AppendInput{UserID: h.user, Type: enums.PointLedgerPurchase, Amount: 40, ReferenceID: &ref})
		return err
	}))

	result, err := h.confirmer.Confirm(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, result.AlreadyProcessed)
	assert.Equal(t, entry.ID, result.LedgerEntryID)
	assert.Equal(t, int64(1), h.ledgerRows(t, txn.ID))

	repaired, err := h.repo.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentTransactionSucceeded, repaired.Status)
	require.NotNil(t, repaired.PointLedgerID)
	assert.Equal(t, entry.ID, *repaired.PointLedgerID)
}

func TestConfirmSucceedsWhenStatusUpdateFails(t *testing.T) {
	h := newHarness(t)
	h.build(t, brokenStatusRepo{Repository: h.repo})
	ctx := context.Background()
	txn := h.seedPending(t, enums.PaymentProviderMock, 60, time.Minute)

	result, err := h.confirmer.Confirm(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(60), result.NewBalance)
	assert.Equal(t, float64(1), h.counter(t, "payments_inconsistent_transactions_total"))

	stored, err := h.repo.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentTransactionPending, stored.Status)

	h.build(t, h.repo)
	again, err := h.confirmer.Confirm(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, int64(1), h.ledgerRows(t, txn.ID))
}

func TestCreateIntentValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateIntentInput
	}{
		{"below minimum", CreateIntentInput{UserID: h.user, AmountCents: 50, PointsAmount: 10}},
		{"above maximum", CreateIntentInput{UserID: h.user, AmountCents: 50001, PointsAmount: 10}},
		{"zero points", CreateIntentInput{UserID: h.user, AmountCents: 499}},
		{"fee equals amount", CreateIntentInput{UserID: h.user, AmountCents: 499, PointsAmount: 10, ServiceFeeCents: 499}},
		{"negative fee", CreateIntentInput{UserID: h.user, AmountCents: 499, PointsAmount: 10, ServiceFeeCents: -1}},
		{"unknown provider", CreateIntentInput{UserID: h.user, AmountCents: 499, PointsAmount: 10, Provider: "square"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.intents.CreateIntent(ctx, tc.input)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		})
	}

	var count int64
	require.NoError(t, h.conn.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateIntentBoundsCarryDetails(t *testing.T) {
	h := newHarness(t)
	_, err := h.intents.CreateIntent(context.Background(), CreateIntentInput{UserID: h.user, AmountCents: 1, PointsAmount: 1})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, map[string]any{"minAmountCents": int64(100), "maxAmountCents": int64(50000)}, typed.Details())
}

func TestCreateStripeIntentProviderFailureLeavesNoRow(t *testing.T) {
	h := newHarness(t)
	h.stripe.err = errors.New("card network down")

	_, err := h.intents.CreateIntent(context.Background(), CreateIntentInput{
		UserID: h.user, AmountCents: 1999, PointsAmount: 500, Provider: "stripe",
	})
	assert.Equal(t, pkgerrors.CodeProvider, pkgerrors.CodeOf(err))

	var count int64
	require.NoError(t, h.conn.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateStripeIntentSendsMetadata(t *testing.T) {
	h := newHarness(t)
	intent, err := h.intents.CreateIntent(context.Background(), CreateIntentInput{
		UserID: h.user, AmountCents: 1999, PointsAmount: 500, ServiceFeeCents: 99, Provider: "Stripe",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentProviderStripe, intent.Provider)

	require.Len(t, h.stripe.created, 1)
	params := h.stripe.created[0]
	assert.Equal(t, int64(1999), *params.Amount)
	assert.Equal(t, "usd", *params.Currency)
	assert.Equal(t, "19.99", params.Metadata["amount_usd"])
	assert.Equal(t, "500", params.Metadata["points_amount"])
	assert.Equal(t, "99", params.Metadata["service_fee_cents"])
}

func TestConfirmForUserChecksOwnershipAndProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedPending(t, enums.PaymentProviderStripe, 500, time.Minute)

	_, err := h.confirmer.ConfirmForUser(ctx, uuid.New(), txn.ID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = h.confirmer.ConfirmForUser(ctx, h.user, txn.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	assert.Zero(t, h.ledgerRows(t, txn.ID))

	h.stripe.status = stripe.PaymentIntentStatusSucceeded
	result, err := h.confirmer.ConfirmForUser(ctx, h.user, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.NewBalance)

	_, err = h.confirmer.Confirm(ctx, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestMarkFailedIsIdempotentAndBlocksConfirm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedPending(t, enums.PaymentProviderStripe, 500, time.Minute)

	input := FailInput{TransactionID: txn.ID, Reason: "Your card was declined.", ProviderStatus: "requires_payment_method"}
	require.NoError(t, h.confirmer.MarkFailed(ctx, input))
	require.NoError(t, h.confirmer.MarkFailed(ctx, input))

	stored, err := h.repo.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentTransactionFailed, stored.Status)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(stored.Metadata, &meta))
	assert.Equal(t, "requires_payment_method", meta["provider_status"])

	var events int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPaymentFailed).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	_, err = h.confirmer.Confirm(ctx, txn.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestStaleSweepFailsAbandonedTransactions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale := h.seedPending(t, enums.PaymentProviderStripe, 500, 25*time.Hour)
	fresh := h.seedPending(t, enums.PaymentProviderStripe, 500, 2*time.Hour)

	result, err := h.reconciler.Sweep(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Examined: 2, Failed: 1, Pending: 1}, result)

	stored, err := h.repo.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.True(t, stored.FailedAsStale())

	_, err = h.confirmer.Confirm(ctx, stale.ID)
	assert.Equal(t, pkgerrors.CodeStaleTransaction, pkgerrors.CodeOf(err))

	stillPending, err := h.repo.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentTransactionPending, stillPending.Status)
}

func TestResolveForUserSplitsOutcomes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mockTxn := h.seedPending(t, enums.PaymentProviderMock, 100, time.Minute)
	stripeTxn := h.seedPending(t, enums.PaymentProviderStripe, 300, time.Minute)
	stale := h.seedPending(t, enums.PaymentProviderMock, 10, 30*time.Hour)
	other := &models.PaymentTransaction{
		ID: uuid.New(), UserID: uuid.New(), Provider: enums.PaymentProviderMock,
		ExternalIntentID: mockIntentPrefix + "other", ExternalClientSecret: "s", AmountCents: 499,
		PointsAmount: 5, Status: enums.PaymentTransactionPending,
	}
	require.NoError(t, h.repo.Create(ctx, other))

	result, err := h.reconciler.ResolveForUser(ctx, h.user)
	require.NoError(t, err)
	require.Len(t, result.Resolved, 2)
	require.Len(t, result.Pending, 1)
	assert.Equal(t, stripeTxn.ID, result.Pending[0].TransactionID)
	assert.Equal(t, "processing", result.Pending[0].ProviderStatus)

	byID := map[uuid.UUID]ResolvedPayment{}
	for _, r := range result.Resolved {
		byID[r.TransactionID] = r
	}
	assert.Equal(t, enums.PaymentTransactionSucceeded, byID[mockTxn.ID].Status)
	assert.Equal(t, int64(100), byID[mockTxn.ID].PointsCredited)
	require.NotNil(t, byID[mockTxn.ID].NewBalance)
	assert.Equal(t, int64(100), *byID[mockTxn.ID].NewBalance)
	assert.Equal(t, enums.FailureReasonStale, byID[stale.ID].FailureReason)

	h.stripe.status = stripe.PaymentIntentStatusCanceled
	result, err = h.reconciler.ResolveForUser(ctx, h.user)
	require.NoError(t, err)
	require.Len(t, result.Resolved, 1)
	assert.Equal(t, "canceled", result.Resolved[0].FailureReason)
	assert.Empty(t, result.Pending)
}

func TestStaleMockTransactionStaysReadable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedPending(t, enums.PaymentProviderMock, 100, 25*time.Hour)

	result, err := h.reconciler.ResolveForUser(ctx, h.user)
	require.NoError(t, err)
	require.Len(t, result.Resolved, 1)
	assert.Equal(t, enums.FailureReasonStale, result.Resolved[0].FailureReason)

	stored, err := h.repo.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, stored.FailedAsStale())
	var meta map[string]any
	require.NoError(t, json.Unmarshal(stored.Metadata, &meta))
	assert.Equal(t, enums.FailureReasonStale, meta["failure_reason"])

	_, err = h.confirmer.Confirm(ctx, txn.ID)
	assert.Equal(t, pkgerrors.CodeStaleTransaction, pkgerrors.CodeOf(err))
}

func TestResolveForUserConfirmsMockRowsAfterMockDisabled(t *testing.T) {
	h := newHarness(t)
	h.cfg.MockEnabled = false
	h.cfg.DefaultProvider = ""
	h.providers = NewProviders(NewStripeProvider(h.stripe))
	h.build(t, h.repo)
	txn := h.seedPending(t, enums.PaymentProviderMock, 40, time.Minute)

	result, err := h.reconciler.ResolveForUser(context.Background(), h.user)
	require.NoError(t, err)
	assert.Empty(t, result.Pending)
	require.Len(t, result.Resolved, 1)
	assert.Equal(t, txn.ID, result.Resolved[0].TransactionID)
	assert.Equal(t, enums.PaymentTransactionSucceeded, result.Resolved[0].Status)
	assert.Equal(t, int64(1), h.ledgerRows(t, txn.ID))
}

func TestCreateIntentWithoutProviderFallsBackToStripe(t *testing.T) {
	h := newHarness(t)
	h.cfg.MockEnabled = false
	h.cfg.DefaultProvider = ""
	h.providers = NewProviders(NewStripeProvider(h.stripe))
	h.build(t, h.repo)

	intent, err := h.intents.CreateIntent(context.Background(), CreateIntentInput{
		UserID: h.user, AmountCents: 1999, PointsAmount: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentProviderStripe, intent.Provider)
	require.Len(t, h.stripe.created, 1)

	_, err = h.intents.CreateIntent(context.Background(), CreateIntentInput{
		UserID: h.user, AmountCents: 1999, PointsAmount: 500, Provider: "mock",
	})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestCreateIntentWithNoProvidersIsDependencyError(t *testing.T) {
	h := newHarness(t)
	h.providers = Providers{}
	h.build(t, h.repo)

	_, err := h.intents.CreateIntent(context.Background(), CreateIntentInput{
		UserID: h.user, AmountCents: 499, PointsAmount: 100,
	})
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}

func TestResolveForUserKeepsPendingOnProviderError(t *testing.T) {
	h := newHarness(t)
	txn := h.seedPending(t, enums.PaymentProviderStripe, 300, time.Minute)
	h.stripe.err = errors.New("timeout")

	result, err := h.reconciler.ResolveForUser(context.Background(), h.user)
	require.NoError(t, err)
	assert.Empty(t, result.Resolved)
	require.Len(t, result.Pending, 1)
	assert.Equal(t, txn.ID, result.Pending[0].TransactionID)
}

func TestCentsToDollars(t *testing.T) {
	assert.Equal(t, "4.99", CentsToDollars(499))
	assert.Equal(t, "100.00", CentsToDollars(10000))
	assert.Equal(t, "0.05", CentsToDollars(5))
}

func TestConfiguredProvidersHonorsConfig(t *testing.T) {
	none := ConfiguredProviders(config.PaymentsConfig{}, nil)
	assert.Empty(t, none)

	both := ConfiguredProviders(config.PaymentsConfig{MockEnabled: true}, &stubStripe{})
	_, hasMock := both.Get(enums.PaymentProviderMock)
	_, hasStripe := both.Get(enums.PaymentProviderStripe)
	assert.True(t, hasMock)
	assert.True(t, hasStripe)
}
