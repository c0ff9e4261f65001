package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/internal/ledger"
	"github.com/angelmondragon/community-market-backend/pkg/config"
	"github.com/angelmondragon/community-market-backend/pkg/db"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
	"github.com/angelmondragon/community-market-backend/pkg/metrics"
	"github.com/angelmondragon/community-market-backend/pkg/outbox"
	"github.com/angelmondragon/community-market-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LedgerWriter is the slice of the ledger a confirmation needs.
type LedgerWriter interface {
	Append(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) (*models.PointLedgerEntry, error)
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.PointLedgerEntry, error)
	FindByReference(ctx context.Context, tx *gorm.DB, entryType enums.PointLedgerType, referenceID uuid.UUID) (*models.PointLedgerEntry, error)
}

// FailInput terminates a pending transaction without credit.
type FailInput struct {
	TransactionID  uuid.UUID
	Reason         string
	ProviderStatus string
}

// ConfirmationParams groups the confirmation service collaborators.
type ConfirmationParams struct {
	Repository Repository
	Ledger     LedgerWriter
	Tx         txRunner
	Outbox     outbox.Emitter
	Providers  Providers
	Config     config.PaymentsConfig
	Metrics    *metrics.PaymentMetrics
	Logger     *logger.Logger
}

// ConfirmationService credits purchased points exactly once per transaction.
type ConfirmationService struct {
	repo      Repository
	ledger    LedgerWriter
	tx        txRunner
	outbox    outbox.Emitter
	providers Providers
	cfg       config.PaymentsConfig
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

// NewConfirmationService validates the collaborators.
func NewConfirmationService(p ConfirmationParams) (*ConfirmationService, error) {
	if p.Repository == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ConfirmationService{
		repo:      p.Repository,
		ledger:    p.Ledger,
		tx:        p.Tx,
		outbox:    p.Outbox,
		providers: p.Providers,
		cfg:       p.Config,
		metrics:   p.Metrics,
		logg:      p.Logger,
	}, nil
}

// Confirm credits the transaction's points. Repeated calls return the
// original credit with AlreadyProcessed set and never add a ledger row.
func (s *ConfirmationService) Confirm(ctx context.Context, transactionID uuid.UUID) (*ConfirmResult, error) {
	txn, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())

	if result, done, err := s.shortCircuit(ctx, nil, txn); done {
		s.countConfirmation(result, err)
		return result, err
	}

	var result *ConfirmResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, txn.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock payment transaction")
		}
		if res, done, err := s.shortCircuit(ctx, tx, locked); done {
			result = res
			return err
		}

		metadata, err := json.Marshal(map[string]any{
			"provider":           locked.Provider,
			"external_intent_id": locked.ExternalIntentID,
			"amount_cents":       locked.AmountCents,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
		}
		ref := locked.ID
		entry, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
			UserID:      locked.UserID,
			Type:        enums.PointLedgerPurchase,
			Amount:      locked.PointsAmount,
			ReferenceID: &ref,
			Metadata:    metadata,
		})
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPointsPurchased,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   locked.ID,
			Actor:         &outbox.ActorRef{UserID: locked.UserID, Role: "user"},
			Data: payloads.PointsPurchasedEvent{
				TransactionID: locked.ID,
				UserID:        locked.UserID,
				Provider:      locked.Provider,
				PointsAmount:  locked.PointsAmount,
				AmountCents:   locked.AmountCents,
				NewBalance:    entry.BalanceAfter,
				LedgerEntryID: entry.ID,
			},
		}); err != nil {
			return err
		}

		result = &ConfirmResult{
			Success:       true,
			TransactionID: locked.ID,
			PointsAmount:  locked.PointsAmount,
			NewBalance:    entry.BalanceAfter,
			LedgerEntryID: entry.ID,
		}
		return nil
	})
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.CodeConflict) {
			s.countConfirmation(nil, err)
			return nil, err
		}
		// A concurrent confirmation won the reference index.
		entry, lookupErr := s.ledger.FindByReference(ctx, nil, enums.PointLedgerPurchase, txn.ID)
		if lookupErr != nil {
			s.countConfirmation(nil, lookupErr)
			return nil, lookupErr
		}
		result = alreadyProcessed(txn, entry)
	}

	s.markSucceeded(ctx, txn, result.LedgerEntryID)
	s.countConfirmation(result, nil)
	return result, nil
}

// ConfirmForUser is the client entry point: the caller must own the
// transaction and the provider must report the payment as completed.
func (s *ConfirmationService) ConfirmForUser(ctx context.Context, userID, transactionID uuid.UUID) (*ConfirmResult, error) {
	txn, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment transaction belongs to another user")
	}
	if txn.Status == enums.PaymentTransactionPending && txn.Provider != enums.PaymentProviderMock {
		provider, ok := s.providers.Get(txn.Provider)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("payment provider %s is not enabled", txn.Provider))
		}
		status, err := s.providerStatus(ctx, provider, txn.ExternalIntentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "retrieve payment intent")
		}
		if status != IntentStatusSucceeded {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment not completed").
				WithDetails(map[string]any{"providerStatus": string(status)})
		}
	}
	return s.Confirm(ctx, transactionID)
}

// MarkFailed moves a pending transaction to failed. Failing an already
// failed transaction is a no-op.
func (s *ConfirmationService) MarkFailed(ctx context.Context, input FailInput) error {
	txn, err := s.load(ctx, input.TransactionID)
	if err != nil {
		return err
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())
	switch txn.Status {
	case enums.PaymentTransactionFailed:
		return nil
	case enums.PaymentTransactionSucceeded:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment transaction already succeeded")
	}

	metadata, err := mergeFailureMetadata(txn.Metadata, input)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode failure metadata")
	}

	var changed bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).MarkFailed(ctx, txn.ID, input.Reason, metadata)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment transaction failed")
		}
		if !ok {
			return nil
		}
		changed = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   txn.ID,
			Data: payloads.PaymentFailedEvent{
				TransactionID:  txn.ID,
				UserID:         txn.UserID,
				Provider:       txn.Provider,
				Reason:         input.Reason,
				ProviderStatus: input.ProviderStatus,
			},
		})
	})
	if err != nil {
		return err
	}
	if !changed {
		current, err := s.load(ctx, txn.ID)
		if err != nil {
			return err
		}
		if current.Status == enums.PaymentTransactionSucceeded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment transaction already succeeded")
		}
		return nil
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"reason": input.Reason}), "payment transaction marked failed")
	return nil
}

// shortCircuit resolves transactions that are already terminal.
func (s *ConfirmationService) shortCircuit(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction) (*ConfirmResult, bool, error) {
	switch txn.Status {
	case enums.PaymentTransactionSucceeded:
		var (
			entry *models.PointLedgerEntry
			err   error
		)
		if txn.PointLedgerID != nil {
			entry, err = s.ledger.FindByID(ctx, tx, *txn.PointLedgerID)
		} else {
			entry, err = s.ledger.FindByReference(ctx, tx, enums.PointLedgerPurchase, txn.ID)
		}
		if err != nil {
			return nil, true, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settled ledger entry")
		}
		return alreadyProcessed(txn, entry), true, nil
	case enums.PaymentTransactionFailed:
		if txn.FailedAsStale() {
			return nil, true, pkgerrors.New(pkgerrors.CodeStaleTransaction, "payment transaction expired")
		}
		return nil, true, pkgerrors.New(pkgerrors.CodeStateConflict, "payment transaction failed").
			WithDetails(map[string]any{"status": txn.Status})
	}
	return nil, false, nil
}

// markSucceeded runs after the ledger commit. A failure here leaves a
// credited but pending row that the next confirmation repairs, so it is
// logged and counted rather than returned.
func (s *ConfirmationService) markSucceeded(ctx context.Context, txn *models.PaymentTransaction, ledgerEntryID uuid.UUID) {
	ok, err := s.repo.MarkSucceeded(ctx, txn.ID, ledgerEntryID)
	if err == nil && ok {
		return
	}
	if err == nil {
		current, loadErr := s.repo.FindByID(ctx, txn.ID)
		if loadErr == nil && current.PointLedgerID != nil && *current.PointLedgerID == ledgerEntryID {
			return
		}
		err = fmt.Errorf("status update matched no pending row")
		if loadErr != nil {
			err = loadErr
		}
	}
	s.metrics.IncInconsistent()
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":         txn.UserID.String(),
		"ledger_entry_id": ledgerEntryID.String(),
		"points_amount":   txn.PointsAmount,
		"provider":        txn.Provider,
	})
	s.logg.Error(ctx, "ledger credited but payment transaction status not updated", err)
}

func (s *ConfirmationService) providerStatus(ctx context.Context, provider Provider, externalID string) (IntentStatus, error) {
	if s.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		defer cancel()
	}
	return provider.IntentStatus(ctx, externalID)
}

func (s *ConfirmationService) load(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
	}
	return txn, nil
}

func (s *ConfirmationService) countConfirmation(result *ConfirmResult, err error) {
	switch {
	case err != nil:
		s.metrics.IncConfirmation(string(pkgerrors.CodeOf(err)))
	case result != nil && result.AlreadyProcessed:
		s.metrics.IncConfirmation("already_processed")
	default:
		s.metrics.IncConfirmation("credited")
	}
}

func alreadyProcessed(txn *models.PaymentTransaction, entry *models.PointLedgerEntry) *ConfirmResult {
	return &ConfirmResult{
		Success:          true,
		TransactionID:    txn.ID,
		PointsAmount:     entry.Amount,
		NewBalance:       entry.BalanceAfter,
		LedgerEntryID:    entry.ID,
		AlreadyProcessed: true,
	}
}

func mergeFailureMetadata(existing json.RawMessage, input FailInput) (json.RawMessage, error) {
	merged := map[string]any{}
	if len(existing) > 0 {
		// Unparseable metadata is replaced rather than blocking the failure.
		_ = json.Unmarshal(existing, &merged)
	}
	merged["failure_reason"] = input.Reason
	if input.ProviderStatus != "" {
		merged["provider_status"] = input.ProviderStatus
	}
	merged["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(merged)
}
