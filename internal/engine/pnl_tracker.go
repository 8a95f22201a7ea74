package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/perparb/internal/models"
)

// LedgerStore is the durable append-only ledger of trade results and
// funding accruals. Implementations must return entries in insertion
// order so recomputed statistics are deterministic.
type LedgerStore interface {
	Append(ctx context.Context, result *models.TradeResult) error
	// List returns entries executed at or after from. The zero time
	// means the whole ledger.
	List(ctx context.Context, from time.Time) ([]models.TradeResult, error)
}

// PnLTracker records trade outcomes and funding accruals, and computes
// rolling statistics. It keeps no running counters: every stat is
// recomputed from the ledger, so a restart reproduces identical numbers.
type PnLTracker struct {
	store  LedgerStore
	logger *logrus.Logger
}

func NewPnLTracker(store LedgerStore, logger *logrus.Logger) *PnLTracker {
	return &PnLTracker{store: store, logger: logger}
}

// Record appends a result to the ledger.
func (t *PnLTracker) Record(ctx context.Context, result *models.TradeResult) error {
	if err := t.store.Append(ctx, result); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	t.logger.WithFields(logrus.Fields{
		"position_id": result.PositionID,
		"pair":        result.Pair,
		"kind":        result.Kind,
		"success":     result.Success,
		"pnl_usd":     result.RealizedPnLUSD.String(),
	}).Info("Ledger entry recorded")
	return nil
}

// Stats aggregates closed-trade outcomes over the requested window.
func (t *PnLTracker) Stats(ctx context.Context, period models.PnLPeriod) (*models.PnLStats, error) {
	now := time.Now()
	from := period.Window(now)

	entries, err := t.store.List(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return ComputeStats(entries, period, from, now), nil
}

// ComputeStats computes statistics from ledger entries. Exits count as
// trades; funding entries only contribute to the accrual total. Pure and
// deterministic: identical inputs always give identical stats.
func ComputeStats(entries []models.TradeResult, period models.PnLPeriod, from, to time.Time) *models.PnLStats {
	stats := &models.PnLStats{
		Period: period,
		From:   from,
		To:     to,
	}

	first := true
	for _, entry := range entries {
		if entry.Kind == models.TradeFunding {
			stats.FundingAccruedUSD = stats.FundingAccruedUSD.Add(entry.RealizedPnLUSD)
			continue
		}
		if entry.Kind != models.TradeExit {
			continue
		}

		stats.TradeCount++
		stats.TotalPnLUSD = stats.TotalPnLUSD.Add(entry.RealizedPnLUSD)
		if entry.RealizedPnLUSD.IsPositive() {
			stats.WinCount++
		}
		if first {
			stats.BestTradeUSD = entry.RealizedPnLUSD
			stats.WorstTradeUSD = entry.RealizedPnLUSD
			first = false
			continue
		}
		if entry.RealizedPnLUSD.GreaterThan(stats.BestTradeUSD) {
			stats.BestTradeUSD = entry.RealizedPnLUSD
		}
		if entry.RealizedPnLUSD.LessThan(stats.WorstTradeUSD) {
			stats.WorstTradeUSD = entry.RealizedPnLUSD
		}
	}

	if stats.TradeCount > 0 {
		count := decimal.NewFromInt(int64(stats.TradeCount))
		stats.WinRate = decimal.NewFromInt(int64(stats.WinCount)).Div(count)
		stats.AvgTradeUSD = stats.TotalPnLUSD.Div(count)
	}
	return stats
}
