// Package binance adapts Binance USD-M perpetual futures to the
// engine's venue capability.
package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/perparb/internal/models"
	"github.com/quantfold/perparb/internal/venues"
)

const venueName = "binance"

// Adapter talks to Binance futures. Order submissions are serialized:
// all orders here sign with the same API key, and concurrent
// submissions from one key risk nonce/ordering conflicts.
type Adapter struct {
	client *futures.Client
	logger *logrus.Logger

	submitMu chan struct{}
}

func New(apiKey, apiSecret string, logger *logrus.Logger) *Adapter {
	gate := make(chan struct{}, 1)
	gate <- struct{}{}
	return &Adapter{
		client:   futures.NewClient(apiKey, apiSecret),
		logger:   logger,
		submitMu: gate,
	}
}

func (a *Adapter) Name() string { return venueName }

func (a *Adapter) FundingIntervalHours() int { return venues.IntervalHours(venueName) }

// GetQuote reads the top of book for a pair. Liquidity is the smaller
// of the bid and ask notional at the touch.
func (a *Adapter) GetQuote(ctx context.Context, pair string) (*models.PriceQuote, error) {
	symbol, err := toSymbol(pair)
	if err != nil {
		return nil, err
	}

	books, err := a.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance book ticker for %s: %w", symbol, err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("binance returned no book for %s", symbol)
	}
	book := books[0]

	bid, err := decimal.NewFromString(book.BidPrice)
	if err != nil {
		return nil, fmt.Errorf("binance bid price for %s: %w", symbol, err)
	}
	ask, err := decimal.NewFromString(book.AskPrice)
	if err != nil {
		return nil, fmt.Errorf("binance ask price for %s: %w", symbol, err)
	}
	bidQty, err := decimal.NewFromString(book.BidQuantity)
	if err != nil {
		return nil, fmt.Errorf("binance bid quantity for %s: %w", symbol, err)
	}
	askQty, err := decimal.NewFromString(book.AskQuantity)
	if err != nil {
		return nil, fmt.Errorf("binance ask quantity for %s: %w", symbol, err)
	}

	return &models.PriceQuote{
		Venue:        venueName,
		Pair:         pair,
		BuyPrice:     ask,
		SellPrice:    bid,
		LiquidityUSD: decimal.Min(bid.Mul(bidQty), ask.Mul(askQty)),
		Timestamp:    time.Now(),
	}, nil
}

// GetFundingRate reads the premium index, which carries the current
// funding rate and the next settlement time.
func (a *Adapter) GetFundingRate(ctx context.Context, pair string) (*models.FundingRate, error) {
	symbol, err := toSymbol(pair)
	if err != nil {
		return nil, err
	}

	premiums, err := a.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance premium index for %s: %w", symbol, err)
	}
	if len(premiums) == 0 {
		return nil, fmt.Errorf("binance returned no premium index for %s", symbol)
	}
	premium := premiums[0]

	rate, err := decimal.NewFromString(premium.LastFundingRate)
	if err != nil {
		return nil, fmt.Errorf("binance funding rate for %s: %w", symbol, err)
	}
	markPrice, err := decimal.NewFromString(premium.MarkPrice)
	if err != nil {
		return nil, fmt.Errorf("binance mark price for %s: %w", symbol, err)
	}

	return &models.FundingRate{
		Venue:           venueName,
		Pair:            pair,
		Rate:            rate,
		IntervalHours:   a.FundingIntervalHours(),
		MarkPrice:       markPrice,
		NextFundingTime: time.UnixMilli(premium.NextFundingTime),
		Timestamp:       time.Now(),
	}, nil
}

// SubmitOrder places a market order. Reduce-only closes reuse the
// exact base size of the leg being closed.
func (a *Adapter) SubmitOrder(ctx context.Context, order venues.Order) (*venues.OrderResult, error) {
	symbol, err := toSymbol(order.Pair)
	if err != nil {
		return nil, err
	}

	quantity := order.BaseSize
	if quantity.IsZero() {
		price, err := a.referencePrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		quantity = order.NotionalUSD.Div(price).Round(3)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("binance order for %s has non-positive quantity", symbol)
	}

	side := futures.SideTypeBuy
	if order.Side == venues.Sell {
		side = futures.SideTypeSell
	}

	// One in-flight submission per signing key.
	select {
	case <-a.submitMu:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { a.submitMu <- struct{}{} }()

	started := time.Now()
	service := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(quantity.String()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if order.ReduceOnly {
		service = service.ReduceOnly(true)
	}

	response, err := service.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance order submit for %s: %w", symbol, err)
	}

	avgPrice, err := decimal.NewFromString(response.AvgPrice)
	if err != nil {
		return nil, fmt.Errorf("binance fill price for %s: %w", symbol, err)
	}
	filled, err := decimal.NewFromString(response.ExecutedQuantity)
	if err != nil {
		return nil, fmt.Errorf("binance filled quantity for %s: %w", symbol, err)
	}

	a.logger.WithFields(logrus.Fields{
		"venue":    venueName,
		"symbol":   symbol,
		"side":     order.Side,
		"quantity": quantity.String(),
		"order_id": response.OrderID,
	}).Info("Order filled")

	return &venues.OrderResult{
		TxSignature: fmt.Sprintf("%d", response.OrderID),
		FillPrice:   avgPrice,
		FilledSize:  filled,
		Latency:     time.Since(started),
	}, nil
}

func (a *Adapter) CancelOrders(ctx context.Context, pair string) error {
	symbol, err := toSymbol(pair)
	if err != nil {
		return err
	}
	if err := a.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return fmt.Errorf("binance cancel orders for %s: %w", symbol, err)
	}
	return nil
}

func (a *Adapter) referencePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := a.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance price for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("binance returned no price for %s", symbol)
	}
	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance price for %s: %w", symbol, err)
	}
	return price, nil
}

// toSymbol maps the engine's perp pair notation onto Binance's USD-M
// symbol space: SOL-PERP -> SOLUSDT.
func toSymbol(pair string) (string, error) {
	base, ok := strings.CutSuffix(pair, "-PERP")
	if !ok || base == "" {
		return "", fmt.Errorf("pair %q is not a perp symbol", pair)
	}
	return strings.ToUpper(base) + "USDT", nil
}
