package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the full database schema. Statements are idempotent so the
// migrate command can be re-run safely.
const Schema = `
CREATE TABLE IF NOT EXISTS wallets (
    address          TEXT PRIMARY KEY,
    credential_id    TEXT NOT NULL,
    poll_interval_ms BIGINT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'active',
    last_refresh_at  TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transfers (
    id                        BIGSERIAL PRIMARY KEY,
    wallet_address            TEXT NOT NULL REFERENCES wallets(address) ON DELETE CASCADE,
    recipient                 TEXT NOT NULL,
    amount_base_units         BIGINT NOT NULL,
    signature                 TEXT,
    status                    TEXT NOT NULL,
    error_code                TEXT,
    error_message             TEXT,
    recipient_account_created BOOLEAN NOT NULL DEFAULT false,
    created_at                TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transfers_wallet_created
    ON transfers (wallet_address, created_at DESC);
`

// Migrate applies the schema to the database.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
