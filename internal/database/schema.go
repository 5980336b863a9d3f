package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on every start. Statements must stay idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS members (
		id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		external_id     TEXT NOT NULL UNIQUE,
		name            TEXT NOT NULL,
		email           TEXT NOT NULL,
		role            TEXT NOT NULL DEFAULT 'MEMBER',
		membership_type TEXT NOT NULL DEFAULT 'STANDARD',
		balance         NUMERIC(12, 2) NOT NULL DEFAULT 0,
		active          BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS membership_fees (
		membership_type TEXT PRIMARY KEY,
		amount          NUMERIC(12, 2) NOT NULL CHECK (amount >= 0),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		amount          NUMERIC(12, 2) NOT NULL CHECK (amount >= 0),
		type            TEXT NOT NULL CHECK (type IN ('income', 'expense')),
		description     TEXT NOT NULL,
		raw_description TEXT NOT NULL DEFAULT '',
		category        TEXT NOT NULL,
		date            TIMESTAMPTZ NOT NULL,
		member_id       UUID REFERENCES members (id),
		event_id        UUID,
		receipt_url     TEXT,
		receipt_key     TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_member ON transactions (member_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions (date)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_receipt_key ON transactions (receipt_key) WHERE receipt_key IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS payment_requests (
		id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		amount         NUMERIC(12, 2) NOT NULL CHECK (amount >= 0),
		category       TEXT NOT NULL CHECK (category IN ('MEMBERSHIP_FEE', 'EVENT', 'OTHER')),
		status         TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PAID', 'WAIVED')),
		due_date       DATE NOT NULL,
		member_id      UUID NOT NULL REFERENCES members (id),
		event_id       UUID,
		transaction_id UUID REFERENCES transactions (id) ON DELETE SET NULL,
		batch_id       UUID,
		version        BIGINT NOT NULL DEFAULT 1,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ,
		CHECK (status <> 'PAID' OR transaction_id IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_requests_member ON payment_requests (member_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_requests_transaction
		ON payment_requests (transaction_id) WHERE transaction_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_requests_batch_member
		ON payment_requests (batch_id, member_id) WHERE batch_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS payments (
		member_id UUID NOT NULL REFERENCES members (id),
		period    TEXT NOT NULL,
		status    TEXT NOT NULL CHECK (status IN ('PAID', 'UNPAID')),
		amount    NUMERIC(12, 2),
		paid_at   TIMESTAMPTZ,
		PRIMARY KEY (member_id, period)
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		member_id  UUID NOT NULL REFERENCES members (id) ON DELETE CASCADE,
		type       TEXT NOT NULL,
		title      TEXT NOT NULL,
		message    TEXT NOT NULL,
		link       TEXT NOT NULL DEFAULT '',
		read       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_member ON notifications (member_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS category_rules (
		id                    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		raw_pattern           TEXT NOT NULL,
		preferred_description TEXT NOT NULL,
		category              TEXT NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate applies the schema inside a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}
