package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema holds the persisted layout: accounts, ledger_entries and transfers
// per the ledger core, plus the role-assignment and metrics tables consumed
// by the surrounding surfaces. All monetary columns are fixed-point numeric;
// all timestamps are UTC.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             BIGSERIAL PRIMARY KEY,
	owner_id       TEXT NOT NULL,
	account_number TEXT NOT NULL UNIQUE,
	routing_code   TEXT NOT NULL,
	account_type   TEXT NOT NULL CHECK (account_type IN ('savings','checking','business')),
	balance        NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id            BIGSERIAL PRIMARY KEY,
	account_id    BIGINT NOT NULL REFERENCES accounts(id),
	entry_type    TEXT NOT NULL CHECK (entry_type IN ('deposit','withdrawal','transfer_in','transfer_out')),
	amount        NUMERIC(18,2) NOT NULL CHECK (amount > 0),
	balance_after NUMERIC(18,2) NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_created
	ON ledger_entries (account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS transfers (
	id                BIGSERIAL PRIMARY KEY,
	reference         TEXT NOT NULL UNIQUE,
	from_account_id   BIGINT NOT NULL REFERENCES accounts(id),
	to_account_number TEXT NOT NULL,
	to_account_id     BIGINT REFERENCES accounts(id),
	amount            NUMERIC(18,2) NOT NULL CHECK (amount > 0),
	status            TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','completed','failed')),
	description       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_transfers_from_created
	ON transfers (from_account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transfers_to_created
	ON transfers (to_account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS account_roles (
	user_id    TEXT PRIMARY KEY,
	role       TEXT NOT NULL CHECK (role IN ('customer','admin')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS system_metrics (
	id           BIGSERIAL PRIMARY KEY,
	metric_name  TEXT NOT NULL,
	metric_value NUMERIC(18,2) NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
