package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeKind classifies ledger entries.
type TradeKind string

const (
	TradeEntry   TradeKind = "entry"
	TradeExit    TradeKind = "exit"
	TradeUnwind  TradeKind = "unwind"
	TradeFunding TradeKind = "funding"
)

// TradeResult is the immutable outcome of an attempted entry, exit or
// unwind, plus periodic funding-accrual records for open positions.
// These form the append-only ledger that all PnL statistics are computed
// from.
type TradeResult struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Pair       string    `json:"pair"`
	Kind       TradeKind `json:"kind"`
	Success    bool      `json:"success"`
	// Transaction signatures per leg; empty when the leg never reached
	// the venue.
	LongTxSignature  string          `json:"long_tx_signature,omitempty"`
	ShortTxSignature string          `json:"short_tx_signature,omitempty"`
	RealizedPnLUSD   decimal.Decimal `json:"realized_pnl_usd"`
	ErrorDetail      string          `json:"error_detail,omitempty"`
	LatencyMs        int64           `json:"latency_ms"`
	ExecutedAt       time.Time       `json:"executed_at"`
}
