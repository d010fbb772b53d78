package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upOrdersTable, downOrdersTable)
}

func upOrdersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE orders (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    user_id UUID NOT NULL REFERENCES users(id),
    phone TEXT NOT NULL,
    country TEXT NOT NULL,
    product TEXT NOT NULL,
    operator TEXT NOT NULL,
    cost NUMERIC(12,2) NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    sms JSONB NOT NULL DEFAULT '[]',
    code TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    received_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    cancelled_at TIMESTAMPTZ
);

CREATE INDEX idx_orders_user_id ON orders(user_id);
CREATE INDEX idx_orders_status ON orders(status);
CREATE INDEX idx_orders_created_at ON orders(created_at DESC);`)
	return err
}

func downOrdersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE orders;`)
	return err
}
