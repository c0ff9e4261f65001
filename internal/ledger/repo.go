package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	"github.com/angelmondragon/community-market-backend/pkg/pagination"
)

// ErrBalanceExhausted is returned by ApplyDelta when a debit would overdraw the balance.
var ErrBalanceExhausted = errors.New("point balance exhausted")

// Repository manages persistence for point ledger entries and balance head rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureBalance(ctx context.Context, userID uuid.UUID) error
	ApplyDelta(ctx context.Context, userID uuid.UUID, delta int64) (int64, error)
	CreateEntry(ctx context.Context, entry *models.PointLedgerEntry) error
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, pageSize int) ([]models.PointLedgerEntry, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.PointLedgerEntry, error)
	FindByReference(ctx context.Context, entryType enums.PointLedgerType, referenceID uuid.UUID) (*models.PointLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) EnsureBalance(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO point_balances (user_id, balance, updated_at) VALUES (?, 0, ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, time.Now().UTC(),
	).Error
}

// ApplyDelta moves the head row by delta and returns the new balance. The row
// update holds the lock that serializes appends for the same user.
func (r *repository) ApplyDelta(ctx context.Context, userID uuid.UUID, delta int64) (int64, error) {
	row := r.db.WithContext(ctx).Raw(
		`UPDATE point_balances SET balance = balance + ?, updated_at = ?
		 WHERE user_id = ? AND balance + ? >= 0
		 RETURNING balance`,
		delta, time.Now().UTC(), userID, delta,
	).Row()
	if row == nil {
		return 0, errors.New("ledger balance update returned no row handle")
	}
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrBalanceExhausted
		}
		return 0, err
	}
	return balance, nil
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.PointLedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var head models.PointBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return head.Balance, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, pageSize int) ([]models.PointLedgerEntry, error) {
	var entries []models.PointLedgerEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Scopes(pagination.Scope(cursor, pageSize)).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PointLedgerEntry, error) {
	var entry models.PointLedgerEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindByReference(ctx context.Context, entryType enums.PointLedgerType, referenceID uuid.UUID) (*models.PointLedgerEntry, error) {
	var entry models.PointLedgerEntry
	if err := r.db.WithContext(ctx).
		Where("type = ? AND reference_id = ?", entryType, referenceID).
		Take(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
