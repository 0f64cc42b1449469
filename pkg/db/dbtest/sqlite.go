// Package dbtest opens throwaway sqlite databases carrying the wallet schema
// for package tests. Postgres-only features (enums, partial indexes, row locks)
// are flattened to their sqlite equivalents.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

var schema = []string{
	`CREATE TABLE wallets (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		withdrawable_cents INTEGER NOT NULL DEFAULT 0 CHECK (withdrawable_cents >= 0),
		unwithdrawable_cents INTEGER NOT NULL DEFAULT 0 CHECK (unwithdrawable_cents >= 0),
		currency TEXT NOT NULL DEFAULT 'USD',
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT wallets_tenant_seller_key UNIQUE (tenant_id, seller_id)
	)`,
	`CREATE TABLE wallet_ledger_entries (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		order_id TEXT,
		deduction_id TEXT,
		kind TEXT NOT NULL,
		amount_cents INTEGER NOT NULL CHECK (amount_cents >= 0),
		balance_before_cents INTEGER NOT NULL,
		balance_after_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		is_withdrawable BOOLEAN NOT NULL DEFAULT false,
		withdrawable_at DATETIME,
		status TEXT NOT NULL DEFAULT 'completed',
		metadata TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE pending_deductions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		order_id TEXT,
		original_amount_cents INTEGER NOT NULL CHECK (original_amount_cents > 0),
		remaining_amount_cents INTEGER NOT NULL CHECK (remaining_amount_cents >= 0),
		reason_code TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		cancelled_by TEXT,
		created_at DATETIME,
		settled_at DATETIME
	)`,
	`CREATE TABLE clearance_timers (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		ledger_entry_id TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		completed_at DATETIME NOT NULL,
		hold_hours INTEGER NOT NULL,
		withdrawable_at DATETIME NOT NULL,
		is_cleared BOOLEAN NOT NULL DEFAULT false,
		is_paused BOOLEAN NOT NULL DEFAULT false,
		is_cancelled BOOLEAN NOT NULL DEFAULT false,
		paused_at DATETIME,
		remaining_seconds_at_pause INTEGER,
		cleared_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT clearance_timers_order_id_key UNIQUE (order_id)
	)`,
	`CREATE TABLE tenant_settings (
		tenant_id TEXT PRIMARY KEY,
		commission_rate TEXT NOT NULL,
		updated_at DATETIME
	)`,
	`CREATE TABLE platform_settings (
		id INTEGER PRIMARY KEY,
		withdrawable_hold_hours INTEGER NOT NULL,
		updated_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		payload TEXT,
		read_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE order_complaints (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		status TEXT NOT NULL,
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
		failed_at DATETIME
	)`,
}

// Open returns a db.Client over a fresh in-memory database with every wallet table created.
func Open(t *testing.T) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	// Failed and slow statements land in the test's own output.
	logg := logger.New(logger.Options{ServiceName: "dbtest", Output: t.Output()})
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 db.NewQueryLogger(logg, time.Second),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.NewWithConn(conn)
}
