package venues

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/perparb/internal/models"
)

type stubAdapter struct {
	name string
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) FundingIntervalHours() int { return IntervalHours(a.name) }

func (a *stubAdapter) GetQuote(context.Context, string) (*models.PriceQuote, error) {
	return nil, nil
}
func (a *stubAdapter) GetFundingRate(context.Context, string) (*models.FundingRate, error) {
	return nil, nil
}

func (a *stubAdapter) SubmitOrder(context.Context, Order) (*OrderResult, error) {
	return nil, nil
}

func (a *stubAdapter) CancelOrders(context.Context, string) error { return nil }

func TestIntervalHours(t *testing.T) {
	tests := []struct {
		venue string
		want  int
	}{
		{"binance", 8},
		{"bybit", 8},
		{"okx", 8},
		{"hyperliquid", 1},
		{"drift", 1},
		{"unknown-venue", 8},
	}

	for _, tt := range tests {
		t.Run(tt.venue, func(t *testing.T) {
			assert.Equal(t, tt.want, IntervalHours(tt.venue))
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Binance", DisplayName("binance"))
	assert.Equal(t, "Hyperliquid", DisplayName("hyperliquid"))
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&stubAdapter{name: "binance"}))

	adapter, err := registry.Get("binance")
	require.NoError(t, err)
	assert.Equal(t, "binance", adapter.Name())

	_, err = registry.Get("okx")
	assert.Error(t, err)
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{name: "binance"}))
	assert.Error(t, registry.Register(&stubAdapter{name: "binance"}))
}

func TestRegistry_StableOrder(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{name: "hyperliquid"}))
	require.NoError(t, registry.Register(&stubAdapter{name: "binance"}))

	assert.Equal(t, []string{"binance", "hyperliquid"}, registry.Names())

	all := registry.All()
	require.Len(t, all, 2)
	assert.Equal(t, "binance", all[0].Name())
	assert.Equal(t, "hyperliquid", all[1].Name())
}
