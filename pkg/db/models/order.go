package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// Order is a buyer/seller agreement for a quantity of product paid in points.
type Order struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID              uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID             uuid.UUID         `gorm:"column:seller_id;type:uuid;not null"`
	ConversationID       *uuid.UUID        `gorm:"column:conversation_id;type:uuid"`
	Category             string            `gorm:"column:category;not null"`
	Product              string            `gorm:"column:product;not null"`
	Quantity             int64             `gorm:"column:quantity;not null"`
	PointsPerUnit        int64             `gorm:"column:points_per_unit;not null"`
	TotalPrice           int64             `gorm:"column:total_price;not null"`
	DeliveryDate         *time.Time        `gorm:"column:delivery_date"`
	DeliveryAddress      string            `gorm:"column:delivery_address;not null;default:''"`
	DeliveryInstructions string            `gorm:"column:delivery_instructions;not null;default:''"`
	DeliveryProofMediaID *uuid.UUID        `gorm:"column:delivery_proof_media_id;type:uuid"`
	Status               enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null"`
	BuyerRating          *int              `gorm:"column:buyer_rating"`
	BuyerFeedback        *string           `gorm:"column:buyer_feedback"`
	SellerRating         *int              `gorm:"column:seller_rating"`
	SellerFeedback       *string           `gorm:"column:seller_feedback"`
	Version              int64             `gorm:"column:version;not null;default:1"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// RoleOf resolves the caller's role by identity comparison.
func (o *Order) RoleOf(userID uuid.UUID) enums.OrderRole {
	switch {
	case o == nil || userID == uuid.Nil:
		return enums.OrderRoleNone
	case userID == o.BuyerID:
		return enums.OrderRoleBuyer
	case userID == o.SellerID:
		return enums.OrderRoleSeller
	default:
		return enums.OrderRoleNone
	}
}

// HasRated reports whether the given role already left a rating.
func (o *Order) HasRated(role enums.OrderRole) bool {
	switch role {
	case enums.OrderRoleBuyer:
		return o.BuyerRating != nil
	case enums.OrderRoleSeller:
		return o.SellerRating != nil
	default:
		return false
	}
}
