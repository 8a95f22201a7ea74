package hyperliquid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/perparb/internal/venues"
)

func TestToCoin(t *testing.T) {
	tests := []struct {
		pair    string
		want    string
		wantErr bool
	}{
		{pair: "SOL-PERP", want: "SOL"},
		{pair: "btc-PERP", want: "BTC"},
		{pair: "SOLUSDT", wantErr: true},
		{pair: "-PERP", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.pair, func(t *testing.T) {
			coin, err := toCoin(tt.pair)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, coin)
		})
	}
}

func TestL2BookResponse_ToQuote(t *testing.T) {
	book := &l2BookResponse{
		Coin: "SOL",
		Time: time.Now().UnixMilli(),
		Levels: [][]bookLevel{
			{{Px: "99.95", Sz: "120"}, {Px: "99.90", Sz: "300"}},
			{{Px: "100.05", Sz: "80"}, {Px: "100.10", Sz: "200"}},
		},
	}

	quote, err := book.toQuote()
	require.NoError(t, err)
	assert.True(t, quote.BuyPrice.Equal(decimal.NewFromFloat(100.05)))
	assert.True(t, quote.SellPrice.Equal(decimal.NewFromFloat(99.95)))
	// min(99.95*120, 100.05*80) = 8004.
	assert.True(t, quote.LiquidityUSD.Equal(decimal.NewFromInt(8004)),
		"got %s", quote.LiquidityUSD)
}

func TestL2BookResponse_ToQuoteEmptyBook(t *testing.T) {
	book := &l2BookResponse{Coin: "SOL", Levels: [][]bookLevel{{}, {}}}
	_, err := book.toQuote()
	assert.Error(t, err)
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(Config{BaseURL: server.URL}, nil, nil, logger)
}

func TestAdapter_GetQuoteFromREST(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		var request infoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "l2Book", request.Type)
		assert.Equal(t, "SOL", request.Coin)

		response := l2BookResponse{
			Coin: "SOL",
			Time: time.Now().UnixMilli(),
			Levels: [][]bookLevel{
				{{Px: "99.95", Sz: "100"}},
				{{Px: "100.05", Sz: "100"}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(response))
	})

	quote, err := adapter.GetQuote(context.Background(), "SOL-PERP")
	require.NoError(t, err)
	assert.Equal(t, "hyperliquid", quote.Venue)
	assert.Equal(t, "SOL-PERP", quote.Pair)
	assert.True(t, quote.BuyPrice.Equal(decimal.NewFromFloat(100.05)))
}

func TestAdapter_GetFundingRate(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		meta := metaResponse{}
		meta.Universe = append(meta.Universe, struct {
			Name       string `json:"name"`
			SzDecimals int    `json:"szDecimals"`
		}{Name: "SOL", SzDecimals: 2})
		contexts := []assetContext{{Funding: "0.0000125", MarkPx: "100.02"}}

		payload := []any{meta, contexts}
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	})

	rate, err := adapter.GetFundingRate(context.Background(), "SOL-PERP")
	require.NoError(t, err)
	assert.Equal(t, 1, rate.IntervalHours)
	assert.True(t, rate.Rate.Equal(decimal.NewFromFloat(0.0000125)))
	assert.True(t, rate.MarkPrice.Equal(decimal.NewFromFloat(100.02)))
}

func TestAdapter_GetFundingRateUnlistedCoin(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		payload := []any{metaResponse{}, []assetContext{}}
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	})

	_, err := adapter.GetFundingRate(context.Background(), "SOL-PERP")
	assert.Error(t, err)
}

func TestAdapter_SubmitOrderWithoutSignerFailsAsSigning(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the venue without a signer")
	})

	_, err := adapter.SubmitOrder(context.Background(), venues.Order{
		Pair:        "SOL-PERP",
		Side:        venues.Buy,
		NotionalUSD: decimal.NewFromInt(1000),
		BaseSize:    decimal.NewFromInt(10),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, venues.ErrSigning)
}

func TestAdapter_NonceStrictlyIncreases(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})

	last := adapter.nextNonce()
	for i := 0; i < 1000; i++ {
		next := adapter.nextNonce()
		require.Greater(t, next, last, "nonces issued in the same millisecond must not repeat")
		last = next
	}
}
