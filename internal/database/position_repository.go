package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quantfold/perparb/internal/models"
)

// PositionRepository persists positions in the positions table. Legs
// are stored flat so the whole position round-trips in one row.
type PositionRepository struct {
	db DB
}

func NewPositionRepository(db DB) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionColumns = `
	id, pair, status, notional_usd, entry_apy_bps, accrued_funding_usd,
	long_venue, long_entry_price, long_exit_price, long_base_size, long_fill_status, long_tx_signature,
	short_venue, short_entry_price, short_exit_price, short_base_size, short_fill_status, short_tx_signature,
	opened_at, closed_at, last_evaluated_at, failure_reason`

// Save inserts a new position row.
func (r *PositionRepository) Save(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22)
	`
	_, err := r.db.Exec(ctx, query, positionArgs(p)...)
	if err != nil {
		return fmt.Errorf("failed to insert position %s: %w", p.ID, err)
	}
	return nil
}

// Update rewrites a position row after a state change or accrual.
func (r *PositionRepository) Update(ctx context.Context, p *models.Position) error {
	query := `
		UPDATE positions SET
			status = $2, notional_usd = $3, entry_apy_bps = $4, accrued_funding_usd = $5,
			long_entry_price = $6, long_exit_price = $7, long_base_size = $8,
			long_fill_status = $9, long_tx_signature = $10,
			short_entry_price = $11, short_exit_price = $12, short_base_size = $13,
			short_fill_status = $14, short_tx_signature = $15,
			opened_at = $16, closed_at = $17, last_evaluated_at = $18, failure_reason = $19
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.Status, p.NotionalUSD, p.EntryApyBps, p.AccruedFundingUSD,
		p.LongLeg.EntryPrice, p.LongLeg.ExitPrice, p.LongLeg.BaseSize,
		p.LongLeg.Status, p.LongLeg.TxSignature,
		p.ShortLeg.EntryPrice, p.ShortLeg.ExitPrice, p.ShortLeg.BaseSize,
		p.ShortLeg.Status, p.ShortLeg.TxSignature,
		nullableTime(p.OpenedAt), p.ClosedAt, p.LastEvaluatedAt, p.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", p.ID, err)
	}
	return nil
}

// ListActive returns every position that has not reached a terminal
// state, so a restart resumes monitoring committed capital.
func (r *PositionRepository) ListActive(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status NOT IN ($1, $2, $3)
		ORDER BY opened_at NULLS LAST
	`
	rows, err := r.db.Query(ctx, query,
		models.StatusClosed, models.StatusFailed, models.StatusManualIntervention)
	if err != nil {
		return nil, fmt.Errorf("failed to query active positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*models.Position, 0)
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, rows.Err()
}

func positionArgs(p *models.Position) []any {
	return []any{
		p.ID, p.Pair, p.Status, p.NotionalUSD, p.EntryApyBps, p.AccruedFundingUSD,
		p.LongLeg.Venue, p.LongLeg.EntryPrice, p.LongLeg.ExitPrice, p.LongLeg.BaseSize,
		p.LongLeg.Status, p.LongLeg.TxSignature,
		p.ShortLeg.Venue, p.ShortLeg.EntryPrice, p.ShortLeg.ExitPrice, p.ShortLeg.BaseSize,
		p.ShortLeg.Status, p.ShortLeg.TxSignature,
		nullableTime(p.OpenedAt), p.ClosedAt, p.LastEvaluatedAt, p.FailureReason,
	}
}

func scanPosition(rows pgx.Rows) (*models.Position, error) {
	var p models.Position
	var openedAt *time.Time
	if err := rows.Scan(
		&p.ID, &p.Pair, &p.Status, &p.NotionalUSD, &p.EntryApyBps, &p.AccruedFundingUSD,
		&p.LongLeg.Venue, &p.LongLeg.EntryPrice, &p.LongLeg.ExitPrice, &p.LongLeg.BaseSize,
		&p.LongLeg.Status, &p.LongLeg.TxSignature,
		&p.ShortLeg.Venue, &p.ShortLeg.EntryPrice, &p.ShortLeg.ExitPrice, &p.ShortLeg.BaseSize,
		&p.ShortLeg.Status, &p.ShortLeg.TxSignature,
		&openedAt, &p.ClosedAt, &p.LastEvaluatedAt, &p.FailureReason,
	); err != nil {
		return nil, fmt.Errorf("failed to scan position row: %w", err)
	}
	if openedAt != nil {
		p.OpenedAt = *openedAt
	}
	p.LongLeg.Pair = p.Pair
	p.LongLeg.Side = models.SideLong
	p.LongLeg.NotionalUSD = p.NotionalUSD
	p.ShortLeg.Pair = p.Pair
	p.ShortLeg.Side = models.SideShort
	p.ShortLeg.NotionalUSD = p.NotionalUSD
	return &p, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
