package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/community-market-backend/pkg/config"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
	"github.com/angelmondragon/community-market-backend/pkg/metrics"
)

const defaultSweepLimit = 100

// Settler is what the reconciler needs from confirmation.
type Settler interface {
	Confirm(ctx context.Context, transactionID uuid.UUID) (*ConfirmResult, error)
	MarkFailed(ctx context.Context, input FailInput) error
}

// Reconciler settles pending transactions whose client never confirmed.
type Reconciler struct {
	repo      Repository
	settler   Settler
	providers Providers
	cfg       config.PaymentsConfig
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewReconciler wires the pending payment reconciler.
func NewReconciler(repo Repository, settler Settler, providers Providers, cfg config.PaymentsConfig, m *metrics.PaymentMetrics, logg *logger.Logger) (*Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if settler == nil {
		return nil, fmt.Errorf("settler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{
		repo:      repo,
		settler:   settler,
		providers: providers,
		cfg:       cfg,
		metrics:   m,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

type outcome struct {
	resolved *ResolvedPayment
	pending  *PendingPayment
}

// ResolveForUser walks the user's pending transactions. Rows that cannot be
// decided right now are reported as pending, never as an error.
func (r *Reconciler) ResolveForUser(ctx context.Context, userID uuid.UUID) (*ResolveResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	txns, err := r.repo.ListPendingByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending payment transactions")
	}

	result := &ResolveResult{Resolved: []ResolvedPayment{}, Pending: []PendingPayment{}}
	for i := range txns {
		out, err := r.resolveOne(ctx, &txns[i])
		if err != nil {
			r.logg.Error(r.logg.WithTransactionID(ctx, txns[i].ID.String()), "failed to reconcile payment transaction", err)
			result.Pending = append(result.Pending, pendingOf(&txns[i], ""))
			continue
		}
		if out.resolved != nil {
			result.Resolved = append(result.Resolved, *out.resolved)
		} else {
			result.Pending = append(result.Pending, *out.pending)
		}
	}
	return result, nil
}

// Sweep applies the same policy to every pending transaction older than
// olderThan, oldest first. Per-row failures are combined into the error.
func (r *Reconciler) Sweep(ctx context.Context, olderThan time.Duration, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	var result SweepResult
	txns, err := r.repo.ListPendingBefore(ctx, r.now().Add(-olderThan), limit)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending payment transactions")
	}

	var errs error
	for i := range txns {
		result.Examined++
		out, err := r.resolveOne(ctx, &txns[i])
		switch {
		case err != nil:
			result.Errored++
			errs = multierr.Append(errs, fmt.Errorf("transaction %s: %w", txns[i].ID, err))
		case out.pending != nil:
			result.Pending++
		case out.resolved.Status == enums.PaymentTransactionSucceeded:
			result.Confirmed++
		default:
			result.Failed++
		}
	}
	return result, errs
}

func (r *Reconciler) resolveOne(ctx context.Context, txn *models.PaymentTransaction) (outcome, error) {
	ctx = r.logg.WithTransactionID(ctx, txn.ID.String())

	if r.cfg.StaleAfter > 0 && r.now().Sub(txn.CreatedAt) > r.cfg.StaleAfter {
		if err := r.settler.MarkFailed(ctx, FailInput{TransactionID: txn.ID, Reason: enums.FailureReasonStale}); err != nil {
			r.metrics.IncReconciliation("error")
			return outcome{}, err
		}
		r.metrics.IncReconciliation("stale")
		return outcome{resolved: &ResolvedPayment{
			TransactionID: txn.ID,
			Provider:      txn.Provider,
			Status:        enums.PaymentTransactionFailed,
			FailureReason: enums.FailureReasonStale,
		}}, nil
	}

	status := IntentStatusSucceeded
	// Mock rows settle without a provider round trip, even after the mock
	// provider has been disabled.
	if txn.Provider != enums.PaymentProviderMock {
		provider, ok := r.providers.Get(txn.Provider)
		if !ok {
			r.logg.Warn(ctx, "no provider configured for pending payment transaction")
			r.metrics.IncReconciliation("pending")
			p := pendingOf(txn, "")
			return outcome{pending: &p}, nil
		}

		var err error
		status, err = r.intentStatus(ctx, provider, txn.ExternalIntentID)
		if err != nil {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"error": err.Error()}), "payment provider lookup failed, leaving transaction pending")
			r.metrics.IncReconciliation("pending")
			p := pendingOf(txn, "")
			return outcome{pending: &p}, nil
		}
	}

	switch {
	case status == IntentStatusSucceeded:
		confirmed, err := r.settler.Confirm(ctx, txn.ID)
		if err != nil {
			r.metrics.IncReconciliation("error")
			return outcome{}, err
		}
		r.metrics.IncReconciliation("confirmed")
		balance := confirmed.NewBalance
		return outcome{resolved: &ResolvedPayment{
			TransactionID:  txn.ID,
			Provider:       txn.Provider,
			Status:         enums.PaymentTransactionSucceeded,
			PointsCredited: confirmed.PointsAmount,
			NewBalance:     &balance,
		}}, nil
	case status.Terminal():
		if err := r.settler.MarkFailed(ctx, FailInput{
			TransactionID:  txn.ID,
			Reason:         string(status),
			ProviderStatus: string(status),
		}); err != nil {
			r.metrics.IncReconciliation("error")
			return outcome{}, err
		}
		r.metrics.IncReconciliation("failed")
		return outcome{resolved: &ResolvedPayment{
			TransactionID: txn.ID,
			Provider:      txn.Provider,
			Status:        enums.PaymentTransactionFailed,
			FailureReason: string(status),
		}}, nil
	}

	r.metrics.IncReconciliation("pending")
	p := pendingOf(txn, string(status))
	return outcome{pending: &p}, nil
}

func (r *Reconciler) intentStatus(ctx context.Context, provider Provider, externalID string) (IntentStatus, error) {
	if r.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ProviderTimeout)
		defer cancel()
	}
	return provider.IntentStatus(ctx, externalID)
}

func pendingOf(txn *models.PaymentTransaction, providerStatus string) PendingPayment {
	return PendingPayment{
		TransactionID:  txn.ID,
		Provider:       txn.Provider,
		PointsAmount:   txn.PointsAmount,
		ProviderStatus: providerStatus,
	}
}
