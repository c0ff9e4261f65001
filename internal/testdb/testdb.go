// Package testdb opens isolated in-memory SQLite databases carrying the same
// tables, unique indexes and partial indexes as the Postgres migrations.
package testdb

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		conversation_id TEXT,
		category TEXT NOT NULL,
		product TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		points_per_unit INTEGER NOT NULL CHECK (points_per_unit > 0),
		total_price INTEGER NOT NULL,
		delivery_date DATETIME,
		delivery_address TEXT NOT NULL DEFAULT '',
		delivery_instructions TEXT NOT NULL DEFAULT '',
		delivery_proof_media_id TEXT,
		status TEXT NOT NULL,
		buyer_rating INTEGER,
		buyer_feedback TEXT,
		seller_rating INTEGER,
		seller_feedback TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE escalations (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		initiator_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		dispute_proof_media_id TEXT,
		status TEXT NOT NULL,
		resolution_type TEXT,
		accepted_refund_offer_id TEXT,
		escalated_at DATETIME,
		resolved_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_escalations_open_order ON escalations(order_id) WHERE status = 'open'`,
	`CREATE TABLE refund_offers (
		id TEXT PRIMARY KEY,
		escalation_id TEXT NOT NULL REFERENCES escalations(id),
		seller_id TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		message TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_refund_offers_accepted ON refund_offers(escalation_id) WHERE status = 'accepted'`,
	`CREATE TABLE point_balances (
		user_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at DATETIME
	)`,
	`CREATE TABLE point_ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount <> 0),
		balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
		reference_id TEXT,
		metadata TEXT,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_point_ledger_reference ON point_ledger_entries(type, reference_id)
		WHERE type IN ('purchase', 'refund') AND reference_id IS NOT NULL`,
	`CREATE TABLE payment_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		external_intent_id TEXT NOT NULL UNIQUE,
		external_client_secret TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		service_fee_cents INTEGER NOT NULL DEFAULT 0,
		points_amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		failure_reason TEXT,
		point_ledger_id TEXT UNIQUE REFERENCES point_ledger_entries(id),
		metadata TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a fresh GORM handle on an isolated in-memory database.
// A single pooled connection serializes transactions the way row locks do in Postgres.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

// Client wraps Open in the production transaction runner.
func Client(t *testing.T) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}
