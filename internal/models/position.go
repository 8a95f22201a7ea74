package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a two-leg position.
type PositionStatus string

const (
	StatusEvaluating PositionStatus = "evaluating"
	StatusOpening    PositionStatus = "opening"
	StatusOpen       PositionStatus = "open"
	StatusClosing    PositionStatus = "closing"
	StatusClosed     PositionStatus = "closed"
	StatusFailed     PositionStatus = "failed"
	// StatusManualIntervention marks a position whose unwind failed after
	// the bounded retries. Capital may still be exposed; no further
	// automated action is taken.
	StatusManualIntervention PositionStatus = "manual_intervention"
)

// IsTerminal reports whether no further automated transitions happen.
func (s PositionStatus) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusFailed, StatusManualIntervention:
		return true
	}
	return false
}

// LegSide is the direction of one leg.
type LegSide string

const (
	SideLong  LegSide = "long"
	SideShort LegSide = "short"
)

// FillStatus tracks whether a leg's order made it onto the venue.
type FillStatus string

const (
	FillPending  FillStatus = "pending"
	FillFilled   FillStatus = "filled"
	FillFailed   FillStatus = "failed"
	FillUnwound  FillStatus = "unwound"
	FillStranded FillStatus = "stranded"
)

// PositionLeg is one side of a delta-neutral pair: a venue plus a
// direction, with its own fill bookkeeping.
type PositionLeg struct {
	Venue       string          `json:"venue"`
	Pair        string          `json:"pair"`
	Side        LegSide         `json:"side"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	NotionalUSD decimal.Decimal `json:"notional_usd"`
	BaseSize    decimal.Decimal `json:"base_size"`
	Status      FillStatus      `json:"status"`
	TxSignature string          `json:"tx_signature"`
}

// Position is the core mutable entity of the engine. It is owned
// exclusively by the position manager; everything else reads snapshots.
type Position struct {
	ID          string               `json:"id"`
	Pair        string               `json:"pair"`
	Opportunity ArbitrageOpportunity `json:"opportunity"`
	LongLeg     PositionLeg          `json:"long_leg"`
	ShortLeg    PositionLeg          `json:"short_leg"`
	Status      PositionStatus       `json:"status"`
	NotionalUSD decimal.Decimal      `json:"notional_usd"`
	// EntryApyBps is the annualized spread at open, in basis points.
	// Compared against the exit threshold for hysteresis.
	EntryApyBps decimal.Decimal `json:"entry_apy_bps"`
	// AccruedFundingUSD is the funding PnL accumulated so far, updated
	// every evaluation cycle while the position is open.
	AccruedFundingUSD decimal.Decimal `json:"accrued_funding_usd"`
	LastEvaluatedAt   time.Time       `json:"last_evaluated_at"`
	OpenedAt          time.Time       `json:"opened_at"`
	ClosedAt          *time.Time      `json:"closed_at"`
	FailureReason     string          `json:"failure_reason,omitempty"`
}

// UnrealizedPnL is the funding accrued so far. Price PnL on a
// delta-neutral pair nets out until the legs are actually closed.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	return p.AccruedFundingUSD
}
