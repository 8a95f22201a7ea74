package engine

import (
	"github.com/shopspring/decimal"

	"github.com/quantfold/perparb/internal/models"
)

// RiskGateConfig holds the sizing and profitability limits.
type RiskGateConfig struct {
	// MinFundingApyBps is the minimum annualized spread, in basis
	// points, required to commit capital.
	MinFundingApyBps decimal.Decimal
	MaxPositionUSD   decimal.Decimal
	MinPositionUSD   decimal.Decimal
}

// RiskGate filters and sizes ranked opportunities against configured
// limits and the set of pairs that already carry an open position. It
// is a pure filter: no state is recorded between calls.
type RiskGate struct {
	config RiskGateConfig
}

func NewRiskGate(config RiskGateConfig) *RiskGate {
	return &RiskGate{config: config}
}

// Filter returns at most one sized opportunity per pair, preserving the
// scanner's ranking, plus the reasons anything was dropped.
func (g *RiskGate) Filter(opportunities []models.ArbitrageOpportunity, openPairs map[string]bool) ([]models.ArbitrageOpportunity, []SkipReason) {
	accepted := make([]models.ArbitrageOpportunity, 0, len(opportunities))
	skips := make([]SkipReason, 0)
	seen := make(map[string]bool)

	for _, opp := range opportunities {
		if seen[opp.Pair] {
			continue
		}
		seen[opp.Pair] = true

		if openPairs[opp.Pair] {
			skips = append(skips, SkipReason{Pair: opp.Pair, Reason: "position already open"})
			continue
		}
		if opp.ProfitBps.LessThan(g.config.MinFundingApyBps) {
			skips = append(skips, SkipReason{Pair: opp.Pair, Reason: "spread below entry threshold"})
			continue
		}

		size := opp.BindingLiquidityUSD
		if g.config.MaxPositionUSD.IsPositive() && size.GreaterThan(g.config.MaxPositionUSD) {
			size = g.config.MaxPositionUSD
		}
		if size.LessThan(g.config.MinPositionUSD) {
			skips = append(skips, SkipReason{Pair: opp.Pair, Reason: "sized notional below operational minimum"})
			continue
		}

		opp.SizedNotionalUSD = size
		accepted = append(accepted, opp)
	}

	return accepted, skips
}
