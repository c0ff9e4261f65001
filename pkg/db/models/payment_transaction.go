package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// PaymentTransaction tracks one points purchase from intent creation to settlement.
type PaymentTransaction struct {
	ID                   uuid.UUID                      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID                      `gorm:"column:user_id;type:uuid;not null"`
	Provider             enums.PaymentProvider          `gorm:"column:provider;type:payment_provider_enum;not null"`
	ExternalIntentID     string                         `gorm:"column:external_intent_id;not null;uniqueIndex"`
	ExternalClientSecret string                         `gorm:"column:external_client_secret;not null"`
	AmountCents          int64                          `gorm:"column:amount_cents;not null"`
	ServiceFeeCents      int64                          `gorm:"column:service_fee_cents;not null;default:0"`
	PointsAmount         int64                          `gorm:"column:points_amount;not null"`
	Status               enums.PaymentTransactionStatus `gorm:"column:status;type:payment_transaction_status_enum;not null"`
	FailureReason        *string                        `gorm:"column:failure_reason"`
	PointLedgerID        *uuid.UUID                     `gorm:"column:point_ledger_id;type:uuid"`
	Metadata             json.RawMessage                `gorm:"column:metadata;type:jsonb"`
	CreatedAt            time.Time                      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                      `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// Settled reports whether the purchase has a ledger credit attached.
func (p *PaymentTransaction) Settled() bool {
	return p.Status == enums.PaymentTransactionSucceeded && p.PointLedgerID != nil
}

// FailedAsStale reports whether the stale sweep terminated the transaction.
func (p *PaymentTransaction) FailedAsStale() bool {
	return p.Status == enums.PaymentTransactionFailed &&
		p.FailureReason != nil && *p.FailureReason == enums.FailureReasonStale
}
