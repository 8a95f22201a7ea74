package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArbitrageOpportunity is a detected funding-rate spread between two
// venues quoting the same perp pair. It is derived per cycle and not
// persisted unless a position is opened from it.
type ArbitrageOpportunity struct {
	ID   string `json:"id"`
	Pair string `json:"pair"`
	// LongVenue carries the lowest funding rate (the long leg collects,
	// or pays least); ShortVenue carries the highest.
	LongVenue  string `json:"long_venue"`
	ShortVenue string `json:"short_venue"`
	// BuyPrice is the long venue's ask, SellPrice the short venue's bid.
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	// SpreadAnnualized is the annualized funding-rate difference between
	// the two venues, as a fraction. ProfitBps is the same spread in
	// basis points.
	SpreadAnnualized decimal.Decimal `json:"spread_annualized"`
	ProfitBps        decimal.Decimal `json:"profit_bps"`
	// BindingLiquidityUSD is the smaller venue's liquidity, capped by
	// the configured position limit: the notional that is actually
	// executable. EstimatedProfitUSD = BindingLiquidityUSD x spread.
	BindingLiquidityUSD decimal.Decimal `json:"binding_liquidity_usd"`
	EstimatedProfitUSD  decimal.Decimal `json:"estimated_profit_usd"`
	// SizedNotionalUSD is filled in by the risk gate once the
	// opportunity survives filtering.
	SizedNotionalUSD decimal.Decimal `json:"sized_notional_usd"`
	DetectedAt       time.Time       `json:"detected_at"`
}
