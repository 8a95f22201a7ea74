package database

import (
	"context"
	"fmt"
)

// schemaStatements create the tables the repositories use. Every
// statement is idempotent so EnsureSchema can run on each startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		pair TEXT NOT NULL,
		status TEXT NOT NULL,
		notional_usd NUMERIC NOT NULL,
		entry_apy_bps NUMERIC NOT NULL,
		accrued_funding_usd NUMERIC NOT NULL DEFAULT 0,
		long_venue TEXT NOT NULL,
		long_entry_price NUMERIC NOT NULL DEFAULT 0,
		long_exit_price NUMERIC NOT NULL DEFAULT 0,
		long_base_size NUMERIC NOT NULL DEFAULT 0,
		long_fill_status TEXT NOT NULL,
		long_tx_signature TEXT NOT NULL DEFAULT '',
		short_venue TEXT NOT NULL,
		short_entry_price NUMERIC NOT NULL DEFAULT 0,
		short_exit_price NUMERIC NOT NULL DEFAULT 0,
		short_base_size NUMERIC NOT NULL DEFAULT 0,
		short_fill_status TEXT NOT NULL,
		short_tx_signature TEXT NOT NULL DEFAULT '',
		opened_at TIMESTAMPTZ,
		closed_at TIMESTAMPTZ,
		last_evaluated_at TIMESTAMPTZ NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status)`,
	`CREATE TABLE IF NOT EXISTS trade_ledger (
		id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		pair TEXT NOT NULL,
		kind TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		long_tx_signature TEXT NOT NULL DEFAULT '',
		short_tx_signature TEXT NOT NULL DEFAULT '',
		realized_pnl_usd NUMERIC NOT NULL DEFAULT 0,
		error_detail TEXT NOT NULL DEFAULT '',
		latency_ms BIGINT NOT NULL DEFAULT 0,
		executed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_ledger_executed_at ON trade_ledger (executed_at)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, statement := range schemaStatements {
		if _, err := db.Exec(ctx, statement); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
