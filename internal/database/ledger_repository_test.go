package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/perparb/internal/models"
)

func TestLedgerRepository_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	result := &models.TradeResult{
		ID:             "trade-1",
		PositionID:     "pos-1",
		Pair:           "SOL-PERP",
		Kind:           models.TradeExit,
		Success:        true,
		RealizedPnLUSD: decimal.NewFromFloat(12.5),
		LatencyMs:      42,
		ExecutedAt:     time.Now(),
	}

	mock.ExpectExec("INSERT INTO trade_ledger").
		WithArgs(result.ID, result.PositionID, result.Pair, result.Kind, result.Success,
			result.LongTxSignature, result.ShortTxSignature,
			result.RealizedPnLUSD, result.ErrorDetail, result.LatencyMs, result.ExecutedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewLedgerRepository(mock)
	assert.NoError(t, repo.Append(context.Background(), result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_AppendError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO trade_ledger").
		WillReturnError(errors.New("disk full"))

	repo := NewLedgerRepository(mock)
	err = repo.Append(context.Background(), &models.TradeResult{ID: "trade-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trade-1")
}

func TestLedgerRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	executedAt := time.Date(2026, 8, 29, 15, 30, 0, 0, time.UTC)
	from := executedAt.Add(-time.Hour)
	rows := pgxmock.NewRows([]string{
		"id", "position_id", "pair", "kind", "success",
		"long_tx_signature", "short_tx_signature",
		"realized_pnl_usd", "error_detail", "latency_ms", "executed_at",
	}).AddRow(
		"trade-1", "pos-1", "SOL-PERP", models.TradeFunding, true,
		"", "", decimal.NewFromFloat(0.75), "", int64(0), executedAt,
	).AddRow(
		"trade-2", "pos-1", "SOL-PERP", models.TradeExit, true,
		"hl-tx", "bn-tx", decimal.NewFromFloat(12.5), "", int64(42), executedAt.Add(time.Minute),
	)

	mock.ExpectQuery("SELECT(.|\n)*FROM trade_ledger").
		WithArgs(from).
		WillReturnRows(rows)

	repo := NewLedgerRepository(mock)
	entries, err := repo.List(context.Background(), from)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Insertion order is preserved so recomputed stats are stable.
	assert.Equal(t, "trade-1", entries[0].ID)
	assert.Equal(t, models.TradeExit, entries[1].Kind)
	assert.True(t, entries[1].RealizedPnLUSD.Equal(decimal.NewFromFloat(12.5)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
