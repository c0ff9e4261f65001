package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// Repository persists payment transactions. Every status write is guarded by
// status = 'pending' so rows only move forward.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
	ListPendingByUser(ctx context.Context, userID uuid.UUID) ([]models.PaymentTransaction, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error)
	MarkSucceeded(ctx context.Context, id, ledgerEntryID uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, metadata json.RawMessage) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment transaction repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	now := time.Now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = now
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("external_intent_id = ?", externalID).Take(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListPendingByUser(ctx context.Context, userID uuid.UUID) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.PaymentTransactionPending).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PaymentTransactionPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) MarkSucceeded(ctx context.Context, id, ledgerEntryID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, enums.PaymentTransactionPending).
		Updates(map[string]any{
			"status":          enums.PaymentTransactionSucceeded,
			"point_ledger_id": ledgerEntryID,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, metadata json.RawMessage) (bool, error) {
	updates := map[string]any{
		"status":         enums.PaymentTransactionFailed,
		"failure_reason": reason,
		"updated_at":     time.Now().UTC(),
	}
	if len(metadata) > 0 {
		updates["metadata"] = metadata
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, enums.PaymentTransactionPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
