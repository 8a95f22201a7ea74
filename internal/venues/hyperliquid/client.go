// Package hyperliquid adapts the Hyperliquid perp DEX to the engine's
// venue capability. Quotes prefer the websocket stream when it is
// fresh and fall back to the REST info endpoint.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/perparb/internal/models"
	"github.com/quantfold/perparb/internal/venues"
)

const venueName = "hyperliquid"

// Config for the adapter. StreamURL may be empty to disable the
// websocket feed and use REST only.
type Config struct {
	BaseURL   string
	StreamURL string
	Timeout   time.Duration
}

// Adapter is a VenueAdapter for Hyperliquid. Order submissions are
// serialized per signing key: two signed requests in flight at once
// can land out of nonce order.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	signer     venues.Signer
	stream     *quoteStream
	logger     *logrus.Logger

	submitMu sync.Mutex
	nonce    int64
}

func New(cfg Config, signer venues.Signer, markets []string, logger *logrus.Logger) *Adapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	adapter := &Adapter{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		signer:     signer,
		logger:     logger,
	}
	if cfg.StreamURL != "" {
		coins := make([]string, 0, len(markets))
		for _, pair := range markets {
			if coin, err := toCoin(pair); err == nil {
				coins = append(coins, coin)
			}
		}
		adapter.stream = newQuoteStream(cfg.StreamURL, coins, logger)
		adapter.stream.start()
	}
	return adapter
}

// Close stops the websocket feed, if any.
func (a *Adapter) Close() {
	if a.stream != nil {
		a.stream.stop()
	}
}

func (a *Adapter) Name() string { return venueName }

func (a *Adapter) FundingIntervalHours() int { return venues.IntervalHours(venueName) }

// GetQuote serves from the stream when the book is fresher than the
// staleness bound, otherwise hits the REST endpoint.
func (a *Adapter) GetQuote(ctx context.Context, pair string) (*models.PriceQuote, error) {
	coin, err := toCoin(pair)
	if err != nil {
		return nil, err
	}

	if a.stream != nil {
		if quote, ok := a.stream.latest(coin); ok {
			quote.Pair = pair
			return quote, nil
		}
	}

	var book l2BookResponse
	if err := a.post(ctx, infoRequest{Type: "l2Book", Coin: coin}, &book); err != nil {
		return nil, fmt.Errorf("hyperliquid l2 book for %s: %w", coin, err)
	}
	quote, err := book.toQuote()
	if err != nil {
		return nil, fmt.Errorf("hyperliquid l2 book for %s: %w", coin, err)
	}
	quote.Pair = pair
	return quote, nil
}

// GetFundingRate reads the asset context for the pair's coin. Rates
// are published hourly.
func (a *Adapter) GetFundingRate(ctx context.Context, pair string) (*models.FundingRate, error) {
	coin, err := toCoin(pair)
	if err != nil {
		return nil, err
	}

	var payload []json.RawMessage
	if err := a.post(ctx, infoRequest{Type: "metaAndAssetCtxs"}, &payload); err != nil {
		return nil, fmt.Errorf("hyperliquid asset contexts: %w", err)
	}
	if len(payload) != 2 {
		return nil, fmt.Errorf("hyperliquid asset contexts: unexpected response shape")
	}

	var meta metaResponse
	if err := json.Unmarshal(payload[0], &meta); err != nil {
		return nil, fmt.Errorf("hyperliquid universe: %w", err)
	}
	var contexts []assetContext
	if err := json.Unmarshal(payload[1], &contexts); err != nil {
		return nil, fmt.Errorf("hyperliquid asset contexts: %w", err)
	}

	for i, asset := range meta.Universe {
		if asset.Name != coin || i >= len(contexts) {
			continue
		}
		rate, err := decimal.NewFromString(contexts[i].Funding)
		if err != nil {
			return nil, fmt.Errorf("hyperliquid funding for %s: %w", coin, err)
		}
		markPrice, err := decimal.NewFromString(contexts[i].MarkPx)
		if err != nil {
			return nil, fmt.Errorf("hyperliquid mark price for %s: %w", coin, err)
		}
		now := time.Now()
		return &models.FundingRate{
			Venue:           venueName,
			Pair:            pair,
			Rate:            rate,
			IntervalHours:   a.FundingIntervalHours(),
			MarkPrice:       markPrice,
			NextFundingTime: now.Truncate(time.Hour).Add(time.Hour),
			Timestamp:       now,
		}, nil
	}
	return nil, fmt.Errorf("hyperliquid does not list %s", coin)
}

// SubmitOrder signs and posts a market order through the injected
// signer. Without a signer the adapter is read-only.
func (a *Adapter) SubmitOrder(ctx context.Context, order venues.Order) (*venues.OrderResult, error) {
	coin, err := toCoin(order.Pair)
	if err != nil {
		return nil, err
	}
	if a.signer == nil {
		return nil, fmt.Errorf("no signer configured for %s: %w", venueName, venues.ErrSigning)
	}

	size := order.BaseSize
	if size.IsZero() {
		quote, err := a.GetQuote(ctx, order.Pair)
		if err != nil {
			return nil, err
		}
		price := quote.BuyPrice
		if order.Side == venues.Sell {
			price = quote.SellPrice
		}
		size = order.NotionalUSD.Div(price).Round(4)
	}
	if !size.IsPositive() {
		return nil, fmt.Errorf("hyperliquid order for %s has non-positive size", coin)
	}

	a.submitMu.Lock()
	defer a.submitMu.Unlock()

	nonce := a.nextNonce()
	action := orderAction{
		Type: "order",
		Orders: []orderRequest{{
			Coin:       coin,
			IsBuy:      order.Side == venues.Buy,
			Size:       size.String(),
			ReduceOnly: order.ReduceOnly,
			OrderType:  "market",
		}},
	}
	actionBytes, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid action encoding: %w", err)
	}

	signature, err := a.signer.Sign(ctx, actionBytes)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid order signing for %s: %w: %w", coin, venues.ErrSigning, err)
	}

	started := time.Now()
	var response exchangeResponse
	request := exchangeRequest{
		Action:    action,
		Nonce:     nonce,
		Signature: fmt.Sprintf("%x", signature),
	}
	if err := a.postTo(ctx, "/exchange", request, &response); err != nil {
		return nil, fmt.Errorf("hyperliquid order submit for %s: %w", coin, err)
	}
	if response.Status != "ok" {
		return nil, fmt.Errorf("hyperliquid rejected order for %s: %s", coin, response.Status)
	}
	fill := response.firstFill()
	if fill == nil {
		return nil, fmt.Errorf("hyperliquid order for %s reported no fill", coin)
	}

	fillPrice, err := decimal.NewFromString(fill.AvgPx)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid fill price for %s: %w", coin, err)
	}
	filledSize, err := decimal.NewFromString(fill.TotalSz)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid fill size for %s: %w", coin, err)
	}

	a.logger.WithFields(logrus.Fields{
		"venue": venueName,
		"coin":  coin,
		"side":  order.Side,
		"size":  size.String(),
		"oid":   fill.Oid,
	}).Info("Order filled")

	return &venues.OrderResult{
		TxSignature: fmt.Sprintf("%d", fill.Oid),
		FillPrice:   fillPrice,
		FilledSize:  filledSize,
		Latency:     time.Since(started),
	}, nil
}

// CancelOrders cancels all resting orders on a coin.
func (a *Adapter) CancelOrders(ctx context.Context, pair string) error {
	coin, err := toCoin(pair)
	if err != nil {
		return err
	}
	if a.signer == nil {
		return fmt.Errorf("no signer configured for %s: %w", venueName, venues.ErrSigning)
	}

	a.submitMu.Lock()
	defer a.submitMu.Unlock()

	action := orderAction{Type: "cancelByCloid", Orders: nil}
	actionBytes, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("hyperliquid cancel encoding: %w", err)
	}
	signature, err := a.signer.Sign(ctx, actionBytes)
	if err != nil {
		return fmt.Errorf("hyperliquid cancel signing for %s: %w: %w", coin, venues.ErrSigning, err)
	}

	var response exchangeResponse
	request := exchangeRequest{
		Action:    action,
		Nonce:     a.nextNonce(),
		Signature: fmt.Sprintf("%x", signature),
	}
	if err := a.postTo(ctx, "/exchange", request, &response); err != nil {
		return fmt.Errorf("hyperliquid cancel for %s: %w", coin, err)
	}
	return nil
}

// nextNonce returns a strictly increasing millisecond nonce. Two
// submissions can land in the same millisecond, and the venue rejects a
// repeated or rewound nonce. Callers hold submitMu.
func (a *Adapter) nextNonce() int64 {
	nonce := time.Now().UnixMilli()
	if nonce <= a.nonce {
		nonce = a.nonce + 1
	}
	a.nonce = nonce
	return nonce
}

func (a *Adapter) post(ctx context.Context, body, result any) error {
	return a.postTo(ctx, "/info", body, result)
}

func (a *Adapter) postTo(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := a.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			a.logger.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	if response.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", response.StatusCode, string(detail))
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// toCoin maps SOL-PERP -> SOL.
func toCoin(pair string) (string, error) {
	base, ok := strings.CutSuffix(pair, "-PERP")
	if !ok || base == "" {
		return "", fmt.Errorf("pair %q is not a perp symbol", pair)
	}
	return strings.ToUpper(base), nil
}
