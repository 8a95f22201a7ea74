package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PnLPeriod selects the rolling window for aggregated statistics.
type PnLPeriod string

const (
	PeriodDay   PnLPeriod = "day"
	PeriodWeek  PnLPeriod = "week"
	PeriodMonth PnLPeriod = "month"
	PeriodAll   PnLPeriod = "all"
)

// Window returns the start of the rolling window relative to now. The
// zero time means no lower bound.
func (p PnLPeriod) Window(now time.Time) time.Time {
	switch p {
	case PeriodDay:
		return now.Add(-24 * time.Hour)
	case PeriodWeek:
		return now.Add(-7 * 24 * time.Hour)
	case PeriodMonth:
		return now.Add(-30 * 24 * time.Hour)
	}
	return time.Time{}
}

// PnLStats aggregates closed-trade outcomes over a rolling window. It is
// always derived from the ledger, never a source of truth itself.
type PnLStats struct {
	Period            PnLPeriod       `json:"period"`
	From              time.Time       `json:"from"`
	To                time.Time       `json:"to"`
	TotalPnLUSD       decimal.Decimal `json:"total_pnl_usd"`
	TradeCount        int             `json:"trade_count"`
	WinCount          int             `json:"win_count"`
	WinRate           decimal.Decimal `json:"win_rate"`
	AvgTradeUSD       decimal.Decimal `json:"avg_trade_usd"`
	BestTradeUSD      decimal.Decimal `json:"best_trade_usd"`
	WorstTradeUSD     decimal.Decimal `json:"worst_trade_usd"`
	FundingAccruedUSD decimal.Decimal `json:"funding_accrued_usd"`
}
