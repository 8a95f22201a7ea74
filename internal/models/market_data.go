package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is one venue's view of a pair for a single aggregation cycle.
// Quotes are produced fresh every cycle and never mutated; a newer cycle
// replaces them wholesale.
type PriceQuote struct {
	Venue     string          `json:"venue"`
	Pair      string          `json:"pair"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	// LiquidityUSD is the available depth near the top of book, in
	// quote-currency units.
	LiquidityUSD decimal.Decimal `json:"liquidity_usd"`
	Timestamp    time.Time       `json:"timestamp"`
}

// FundingRate is a venue's published funding rate for a perp pair.
// Rate is per funding interval, as a fraction (0.0003 = 0.03%).
type FundingRate struct {
	Venue           string          `json:"venue"`
	Pair            string          `json:"pair"`
	Rate            decimal.Decimal `json:"rate"`
	IntervalHours   int             `json:"interval_hours"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	NextFundingTime time.Time       `json:"next_funding_time"`
	Timestamp       time.Time       `json:"timestamp"`
}

// AnnualizedRate extrapolates the per-interval rate to an annual basis
// using simple (non-compounded) annualization.
func (f *FundingRate) AnnualizedRate() decimal.Decimal {
	interval := f.IntervalHours
	if interval <= 0 {
		interval = 8
	}
	periodsPerYear := decimal.NewFromInt(int64(24 * 365 / interval))
	return f.Rate.Mul(periodsPerYear)
}
