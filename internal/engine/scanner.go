package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantfold/perparb/internal/models"
)

var bpsPerUnit = decimal.NewFromInt(10000)

// SkipReason explains why a pair or opportunity was dropped during a
// cycle. The one-shot scan mode surfaces these to the operator.
type SkipReason struct {
	Pair   string `json:"pair"`
	Reason string `json:"reason"`
}

// ScannerConfig caps the notional used for profit estimation.
type ScannerConfig struct {
	MaxPositionUSD decimal.Decimal
}

// Scanner turns a cycle snapshot into ranked arbitrage opportunities.
// It is a pure function of its inputs: no I/O, no retained state.
type Scanner struct {
	config ScannerConfig
}

func NewScanner(config ScannerConfig) *Scanner {
	return &Scanner{config: config}
}

// Scan computes the funding-rate spread for every pair quoted on at
// least two venues. The venue with the highest annualized rate becomes
// the short candidate, the lowest the long candidate. Only strictly
// positive spreads are emitted, sorted by estimated USD profit.
func (s *Scanner) Scan(snapshot *Snapshot) ([]models.ArbitrageOpportunity, []SkipReason) {
	opportunities := make([]models.ArbitrageOpportunity, 0)
	skips := make([]SkipReason, 0)

	pairs := make([]string, 0, len(snapshot.Funding))
	for pair := range snapshot.Funding {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	for _, pair := range pairs {
		rates := snapshot.Funding[pair]
		if len(rates) < 2 {
			skips = append(skips, SkipReason{Pair: pair, Reason: "only one venue quoting"})
			continue
		}

		shortVenue, longVenue := extremeVenues(rates)
		// Annualize per venue before differencing: funding intervals
		// differ across venues (hourly vs 8-hourly).
		spread := rates[shortVenue].AnnualizedRate().Sub(rates[longVenue].AnnualizedRate())
		if !spread.IsPositive() {
			skips = append(skips, SkipReason{Pair: pair, Reason: "non-positive funding spread"})
			continue
		}

		longQuote, okLong := snapshot.QuoteFor(pair, longVenue)
		shortQuote, okShort := snapshot.QuoteFor(pair, shortVenue)
		if !okLong || !okShort {
			skips = append(skips, SkipReason{Pair: pair, Reason: "missing quote for spread venue"})
			continue
		}

		// The smaller side's liquidity binds the executable size.
		notional := decimal.Min(longQuote.LiquidityUSD, shortQuote.LiquidityUSD)
		if s.config.MaxPositionUSD.IsPositive() && notional.GreaterThan(s.config.MaxPositionUSD) {
			notional = s.config.MaxPositionUSD
		}

		opportunities = append(opportunities, models.ArbitrageOpportunity{
			ID:                  uuid.New().String(),
			Pair:                pair,
			LongVenue:           longVenue,
			ShortVenue:          shortVenue,
			BuyPrice:            longQuote.BuyPrice,
			SellPrice:           shortQuote.SellPrice,
			SpreadAnnualized:    spread,
			ProfitBps:           spread.Mul(bpsPerUnit),
			BindingLiquidityUSD: notional,
			EstimatedProfitUSD:  notional.Mul(spread),
			DetectedAt:          snapshot.Timestamp,
		})
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		a, b := opportunities[i], opportunities[j]
		// Estimated profit is notional x spread, so equal-bps ties
		// resolve in favor of the deeper book automatically.
		if !a.EstimatedProfitUSD.Equal(b.EstimatedProfitUSD) {
			return a.EstimatedProfitUSD.GreaterThan(b.EstimatedProfitUSD)
		}
		return a.ProfitBps.GreaterThan(b.ProfitBps)
	})

	return opportunities, skips
}

// extremeVenues returns the venues with the highest and lowest
// annualized funding rate for a pair.
func extremeVenues(rates map[string]*models.FundingRate) (highest, lowest string) {
	venueNames := make([]string, 0, len(rates))
	for venue := range rates {
		venueNames = append(venueNames, venue)
	}
	sort.Strings(venueNames)

	highest, lowest = venueNames[0], venueNames[0]
	for _, venue := range venueNames[1:] {
		annualized := rates[venue].AnnualizedRate()
		if annualized.GreaterThan(rates[highest].AnnualizedRate()) {
			highest = venue
		}
		if annualized.LessThan(rates[lowest].AnnualizedRate()) {
			lowest = venue
		}
	}
	return highest, lowest
}

func (r SkipReason) String() string {
	return fmt.Sprintf("%s: %s", r.Pair, r.Reason)
}
