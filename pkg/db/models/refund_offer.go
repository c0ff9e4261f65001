package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// RefundOffer is a seller's proposal to settle a dispute with a points refund.
type RefundOffer struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EscalationID uuid.UUID               `gorm:"column:escalation_id;type:uuid;not null"`
	SellerID     uuid.UUID               `gorm:"column:seller_id;type:uuid;not null"`
	Amount       int64                   `gorm:"column:amount;not null"`
	Message      string                  `gorm:"column:message;not null;default:''"`
	Status       enums.RefundOfferStatus `gorm:"column:status;type:refund_offer_status_enum;not null"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (RefundOffer) TableName() string { return "refund_offers" }
