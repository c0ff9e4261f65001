package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// Escalation is the dispute record opened against a delivered order.
type Escalation struct {
	ID                    uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID                   `gorm:"column:order_id;type:uuid;not null"`
	InitiatorID           uuid.UUID                   `gorm:"column:initiator_id;type:uuid;not null"`
	Reason                string                      `gorm:"column:reason;not null"`
	DisputeProofMediaID   *uuid.UUID                  `gorm:"column:dispute_proof_media_id;type:uuid"`
	Status                enums.EscalationStatus      `gorm:"column:status;type:escalation_status_enum;not null"`
	ResolutionType        *enums.EscalationResolution `gorm:"column:resolution_type;type:escalation_resolution_enum"`
	AcceptedRefundOfferID *uuid.UUID                  `gorm:"column:accepted_refund_offer_id;type:uuid"`
	EscalatedAt           *time.Time                  `gorm:"column:escalated_at"`
	ResolvedAt            *time.Time                  `gorm:"column:resolved_at"`
	CreatedAt             time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Escalation) TableName() string { return "escalations" }
