package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/perparb/internal/engine"
	"github.com/quantfold/perparb/internal/models"
)

func newTestCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotCache(client), server
}

func TestSnapshotCache_SnapshotRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	snapshot := engine.NewSnapshot()
	snapshot.Quotes["SOL-PERP"] = map[string]*models.PriceQuote{
		"binance": {
			Venue:        "binance",
			Pair:         "SOL-PERP",
			BuyPrice:     decimal.NewFromFloat(100.1),
			SellPrice:    decimal.NewFromFloat(100.0),
			LiquidityUSD: decimal.NewFromInt(50000),
			Timestamp:    time.Now().UTC(),
		},
	}
	snapshot.FailedVenues = []string{"hyperliquid"}

	require.NoError(t, cache.StoreSnapshot(ctx, snapshot))

	quote, err := cache.Quote(ctx, "binance", "SOL-PERP")
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.True(t, quote.BuyPrice.Equal(decimal.NewFromFloat(100.1)))
	assert.True(t, quote.LiquidityUSD.Equal(decimal.NewFromInt(50000)))

	failed, err := cache.FailedVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hyperliquid"}, failed)
}

func TestSnapshotCache_QuoteMissing(t *testing.T) {
	cache, _ := newTestCache(t)

	quote, err := cache.Quote(context.Background(), "binance", "SOL-PERP")
	require.NoError(t, err)
	assert.Nil(t, quote)
}

func TestSnapshotCache_OpportunitiesRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	opportunities := []models.ArbitrageOpportunity{{
		ID:               "opp-1",
		Pair:             "SOL-PERP",
		LongVenue:        "hyperliquid",
		ShortVenue:       "binance",
		SpreadAnnualized: decimal.NewFromFloat(0.438),
		ProfitBps:        decimal.NewFromInt(4380),
	}}

	require.NoError(t, cache.StoreOpportunities(ctx, opportunities))

	cached, err := cache.Opportunities(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "opp-1", cached[0].ID)
	assert.True(t, cached[0].ProfitBps.Equal(decimal.NewFromInt(4380)))
}

func TestSnapshotCache_ExpiredOpportunitiesEmpty(t *testing.T) {
	cache, server := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.StoreOpportunities(ctx, []models.ArbitrageOpportunity{{ID: "opp-1"}}))
	server.FastForward(10 * time.Minute)

	cached, err := cache.Opportunities(ctx)
	require.NoError(t, err)
	assert.Empty(t, cached)
}
