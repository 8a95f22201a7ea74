package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/perparb/internal/models"
)

func gateOpportunity(pair string, profitBps, liquidity float64) models.ArbitrageOpportunity {
	bps := decimal.NewFromFloat(profitBps)
	return models.ArbitrageOpportunity{
		ID:                  pair + "-opp",
		Pair:                pair,
		LongVenue:           "hyperliquid",
		ShortVenue:          "binance",
		SpreadAnnualized:    bps.Div(decimal.NewFromInt(10000)),
		ProfitBps:           bps,
		BindingLiquidityUSD: decimal.NewFromFloat(liquidity),
	}
}

func TestRiskGate_AcceptsAndSizes(t *testing.T) {
	gate := NewRiskGate(RiskGateConfig{
		MinFundingApyBps: decimal.NewFromInt(2000),
		MaxPositionUSD:   decimal.NewFromInt(10000),
		MinPositionUSD:   decimal.NewFromInt(100),
	})

	accepted, skips := gate.Filter([]models.ArbitrageOpportunity{
		gateOpportunity("SOL-PERP", 4380, 30000),
	}, nil)

	require.Len(t, accepted, 1)
	assert.Empty(t, skips)
	// Liquidity exceeds the cap, so the cap binds.
	assert.True(t, accepted[0].SizedNotionalUSD.Equal(decimal.NewFromInt(10000)))
}

func TestRiskGate_RejectsBelowEntryThreshold(t *testing.T) {
	gate := NewRiskGate(RiskGateConfig{
		MinFundingApyBps: decimal.NewFromInt(2000),
		MaxPositionUSD:   decimal.NewFromInt(10000),
		MinPositionUSD:   decimal.NewFromInt(100),
	})

	accepted, skips := gate.Filter([]models.ArbitrageOpportunity{
		gateOpportunity("SOL-PERP", 1999, 30000),
	}, nil)

	assert.Empty(t, accepted)
	require.Len(t, skips, 1)
	assert.Equal(t, "spread below entry threshold", skips[0].Reason)
}

func TestRiskGate_NoDoublingUpOnOpenPair(t *testing.T) {
	gate := NewRiskGate(RiskGateConfig{
		MinFundingApyBps: decimal.NewFromInt(2000),
		MaxPositionUSD:   decimal.NewFromInt(10000),
		MinPositionUSD:   decimal.NewFromInt(100),
	})

	accepted, skips := gate.Filter([]models.ArbitrageOpportunity{
		gateOpportunity("SOL-PERP", 4380, 30000),
		gateOpportunity("BTC-PERP", 3000, 30000),
	}, map[string]bool{"SOL-PERP": true})

	require.Len(t, accepted, 1)
	assert.Equal(t, "BTC-PERP", accepted[0].Pair)
	require.Len(t, skips, 1)
	assert.Equal(t, "position already open", skips[0].Reason)
}

func TestRiskGate_RejectsBelowOperationalMinimum(t *testing.T) {
	gate := NewRiskGate(RiskGateConfig{
		MinFundingApyBps: decimal.NewFromInt(2000),
		MaxPositionUSD:   decimal.NewFromInt(10000),
		MinPositionUSD:   decimal.NewFromInt(100),
	})

	accepted, skips := gate.Filter([]models.ArbitrageOpportunity{
		gateOpportunity("SOL-PERP", 4380, 50),
	}, nil)

	assert.Empty(t, accepted)
	require.Len(t, skips, 1)
	assert.Equal(t, "sized notional below operational minimum", skips[0].Reason)
}

func TestRiskGate_OnePerPair(t *testing.T) {
	gate := NewRiskGate(RiskGateConfig{
		MinFundingApyBps: decimal.NewFromInt(2000),
		MaxPositionUSD:   decimal.NewFromInt(10000),
		MinPositionUSD:   decimal.NewFromInt(100),
	})

	accepted, _ := gate.Filter([]models.ArbitrageOpportunity{
		gateOpportunity("SOL-PERP", 4380, 30000),
		gateOpportunity("SOL-PERP", 3000, 30000),
	}, nil)

	require.Len(t, accepted, 1)
	assert.True(t, accepted[0].ProfitBps.Equal(decimal.NewFromInt(4380)))
}
