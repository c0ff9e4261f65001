package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// PointLedgerEntry records an immutable points movement for a user.
type PointLedgerEntry struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	Type         enums.PointLedgerType `gorm:"column:type;type:point_ledger_type_enum;not null"`
	Amount       int64                 `gorm:"column:amount;not null"`
	BalanceAfter int64                 `gorm:"column:balance_after;not null"`
	ReferenceID  *uuid.UUID            `gorm:"column:reference_id;type:uuid"`
	Metadata     json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (PointLedgerEntry) TableName() string { return "point_ledger_entries" }

// PointBalance is the per-user head row that serializes ledger appends.
type PointBalance struct {
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Balance   int64     `gorm:"column:balance;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PointBalance) TableName() string { return "point_balances" }
