package database

import (
	"context"
	"fmt"
	"time"

	"github.com/quantfold/perparb/internal/models"
)

// LedgerRepository is the durable append-only trade ledger. Rows are
// never updated or deleted; statistics are recomputed from them.
type LedgerRepository struct {
	db DB
}

func NewLedgerRepository(db DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Append(ctx context.Context, result *models.TradeResult) error {
	query := `
		INSERT INTO trade_ledger (
			id, position_id, pair, kind, success,
			long_tx_signature, short_tx_signature,
			realized_pnl_usd, error_detail, latency_ms, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		result.ID, result.PositionID, result.Pair, result.Kind, result.Success,
		result.LongTxSignature, result.ShortTxSignature,
		result.RealizedPnLUSD, result.ErrorDetail, result.LatencyMs, result.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry %s: %w", result.ID, err)
	}
	return nil
}

func (r *LedgerRepository) List(ctx context.Context, from time.Time) ([]models.TradeResult, error) {
	query := `
		SELECT id, position_id, pair, kind, success,
			long_tx_signature, short_tx_signature,
			realized_pnl_usd, error_detail, latency_ms, executed_at
		FROM trade_ledger
		WHERE executed_at >= $1
		ORDER BY executed_at, id
	`
	rows, err := r.db.Query(ctx, query, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade ledger: %w", err)
	}
	defer rows.Close()

	entries := make([]models.TradeResult, 0)
	for rows.Next() {
		var entry models.TradeResult
		if err := rows.Scan(
			&entry.ID, &entry.PositionID, &entry.Pair, &entry.Kind, &entry.Success,
			&entry.LongTxSignature, &entry.ShortTxSignature,
			&entry.RealizedPnLUSD, &entry.ErrorDetail, &entry.LatencyMs, &entry.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
