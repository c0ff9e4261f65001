package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/pkg/db"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/pagination"
)

const (
	referenceIndexName = "ux_point_ledger_reference"
)

// Service appends to and reads from the points ledger.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.PointLedgerEntry, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	BalanceTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryPage, error)
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.PointLedgerEntry, error)
	FindByReference(ctx context.Context, tx *gorm.DB, entryType enums.PointLedgerType, referenceID uuid.UUID) (*models.PointLedgerEntry, error)
}

// HistoryPage is one page of entries, newest first. NextCursor is empty on
// the last page.
type HistoryPage struct {
	Entries    []models.PointLedgerEntry
	NextCursor string
}

// AppendInput captures one signed points movement.
type AppendInput struct {
	UserID      uuid.UUID             `json:"user_id"`
	Type        enums.PointLedgerType `json:"type"`
	Amount      int64                 `json:"amount"`
	ReferenceID *uuid.UUID            `json:"reference_id,omitempty"`
	Metadata    json.RawMessage       `json:"metadata,omitempty"`
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// Append must run inside the caller's transaction: the balance head row and
// the entry commit together or not at all.
func (s *service) Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.PointLedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger append requires a transaction")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", input.Type))
	}
	if input.Amount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger amount must be non-zero")
	}
	if input.Type.ReferenceUnique() && input.ReferenceID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s entries require a reference id", input.Type))
	}

	repo := s.repo.WithTx(tx)
	if err := repo.EnsureBalance(ctx, input.UserID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ensure point balance")
	}

	balance, err := repo.ApplyDelta(ctx, input.UserID, input.Amount)
	if err != nil {
		if errors.Is(err, ErrBalanceExhausted) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient point balance").
				WithDetails(map[string]any{"required": -input.Amount})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply point balance delta")
	}

	entry := &models.PointLedgerEntry{
		UserID:       input.UserID,
		Type:         input.Type,
		Amount:       input.Amount,
		BalanceAfter: balance,
		ReferenceID:  input.ReferenceID,
		Metadata:     input.Metadata,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, referenceIndexName) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "ledger entry already recorded for reference")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create ledger entry")
	}
	return entry, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.BalanceTx(ctx, nil, userID)
}

func (s *service) BalanceTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	balance, err := s.repo.WithTx(tx).Balance(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load point balance")
	}
	return balance, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	size := params.PageSize()
	entries, err := s.repo.ListByUser(ctx, userID, cursor, size)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	page := &HistoryPage{}
	page.Entries, page.NextCursor = pagination.Trim(entries, size, entryCursor)
	return page, nil
}

func entryCursor(e models.PointLedgerEntry) pagination.Cursor {
	return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

func (s *service) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.PointLedgerEntry, error) {
	entry, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger entry")
	}
	return entry, nil
}

func (s *service) FindByReference(ctx context.Context, tx *gorm.DB, entryType enums.PointLedgerType, referenceID uuid.UUID) (*models.PointLedgerEntry, error) {
	entry, err := s.repo.WithTx(tx).FindByReference(ctx, entryType, referenceID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger entry by reference")
	}
	return entry, nil
}
