package escalations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// Repository persists escalations and their refund offers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateEscalation(ctx context.Context, escalation *models.Escalation) error
	FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Escalation, error)
	FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.Escalation, error)
	FindEscalation(ctx context.Context, id uuid.UUID) (*models.Escalation, error)
	UpdateOpenEscalation(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	CreateOffer(ctx context.Context, offer *models.RefundOffer) error
	FindOffer(ctx context.Context, id uuid.UUID) (*models.RefundOffer, error)
	ListOffers(ctx context.Context, escalationID uuid.UUID) ([]models.RefundOffer, error)
	TransitionOffer(ctx context.Context, id uuid.UUID, from, to enums.RefundOfferStatus) (bool, error)
	WithdrawPendingOffers(ctx context.Context, escalationID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an escalations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEscalation(ctx context.Context, escalation *models.Escalation) error {
	if escalation.ID == uuid.Nil {
		escalation.ID = uuid.New()
	}
	now := time.Now().UTC()
	escalation.CreatedAt = now
	escalation.UpdatedAt = now
	return r.db.WithContext(ctx).Create(escalation).Error
}

func (r *repository) FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Escalation, error) {
	var escalation models.Escalation
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.EscalationStatusOpen).
		Take(&escalation).Error; err != nil {
		return nil, err
	}
	return &escalation, nil
}

func (r *repository) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.Escalation, error) {
	var escalation models.Escalation
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&escalation).Error; err != nil {
		return nil, err
	}
	return &escalation, nil
}

func (r *repository) FindEscalation(ctx context.Context, id uuid.UUID) (*models.Escalation, error) {
	var escalation models.Escalation
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&escalation).Error; err != nil {
		return nil, err
	}
	return &escalation, nil
}

func (r *repository) UpdateOpenEscalation(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for column, value := range updates {
		values[column] = value
	}
	values["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Escalation{}).
		Where("id = ? AND status = ?", id, enums.EscalationStatusOpen).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateOffer(ctx context.Context, offer *models.RefundOffer) error {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	now := time.Now().UTC()
	offer.CreatedAt = now
	offer.UpdatedAt = now
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *repository) FindOffer(ctx context.Context, id uuid.UUID) (*models.RefundOffer, error) {
	var offer models.RefundOffer
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repository) ListOffers(ctx context.Context, escalationID uuid.UUID) ([]models.RefundOffer, error) {
	var offers []models.RefundOffer
	if err := r.db.WithContext(ctx).
		Where("escalation_id = ?", escalationID).
		Order("created_at ASC").
		Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

// TransitionOffer moves an offer from one status to another; it reports false
// when the offer was no longer in the expected status.
func (r *repository) TransitionOffer(ctx context.Context, id uuid.UUID, from, to enums.RefundOfferStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RefundOffer{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) WithdrawPendingOffers(ctx context.Context, escalationID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RefundOffer{}).
		Where("escalation_id = ? AND status = ?", escalationID, enums.RefundOfferStatusPending).
		Updates(map[string]any{"status": enums.RefundOfferStatusWithdrawn, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}
