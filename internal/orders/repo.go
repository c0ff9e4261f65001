package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, version int64, updates map[string]any) (bool, error)
	SetRating(ctx context.Context, id uuid.UUID, role enums.OrderRole, rating int, feedback *string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// CompareAndSwap applies updates and bumps the version only if the stored
// version still equals version. It reports whether the row was written.
func (r *repository) CompareAndSwap(ctx context.Context, id uuid.UUID, version int64, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+2)
	for column, value := range updates {
		values[column] = value
	}
	values["version"] = gorm.Expr("version + 1")
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", id, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetRating records one party's rating on a completed order without touching the version.
func (r *repository) SetRating(ctx context.Context, id uuid.UUID, role enums.OrderRole, rating int, feedback *string) (bool, error) {
	ratingColumn, feedbackColumn := "buyer_rating", "buyer_feedback"
	if role == enums.OrderRoleSeller {
		ratingColumn, feedbackColumn = "seller_rating", "seller_feedback"
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND "+ratingColumn+" IS NULL", id, enums.OrderStatusCompleted).
		Updates(map[string]any{
			ratingColumn:   rating,
			feedbackColumn: feedback,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
