package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/perparb/internal/models"
	"github.com/quantfold/perparb/internal/venues"
)

// mockVenue is a scriptable VenueAdapter for engine tests.
type mockVenue struct {
	name     string
	interval int

	mu          sync.Mutex
	quotes      map[string]*models.PriceQuote
	funding     map[string]*models.FundingRate
	quoteErr    error
	fundingErr  error
	quoteDelay  time.Duration
	submitErr   error
	submitErrs  []error
	fillPrice   decimal.Decimal
	submitted   []venues.Order
	submitCalls int
}

func newMockVenue(name string, interval int) *mockVenue {
	return &mockVenue{
		name:      name,
		interval:  interval,
		quotes:    make(map[string]*models.PriceQuote),
		funding:   make(map[string]*models.FundingRate),
		fillPrice: decimal.NewFromInt(100),
	}
}

func (v *mockVenue) setQuote(pair string, buy, sell, liquidity float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quotes[pair] = &models.PriceQuote{
		Venue:        v.name,
		Pair:         pair,
		BuyPrice:     decimal.NewFromFloat(buy),
		SellPrice:    decimal.NewFromFloat(sell),
		LiquidityUSD: decimal.NewFromFloat(liquidity),
		Timestamp:    time.Now(),
	}
}

func (v *mockVenue) setFunding(pair string, rate float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.funding[pair] = &models.FundingRate{
		Venue:         v.name,
		Pair:          pair,
		Rate:          decimal.NewFromFloat(rate),
		IntervalHours: v.interval,
		Timestamp:     time.Now(),
	}
}

func (v *mockVenue) Name() string { return v.name }

func (v *mockVenue) FundingIntervalHours() int { return v.interval }

func (v *mockVenue) GetQuote(ctx context.Context, pair string) (*models.PriceQuote, error) {
	if v.quoteDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(v.quoteDelay):
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.quoteErr != nil {
		return nil, v.quoteErr
	}
	quote, ok := v.quotes[pair]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", pair)
	}
	copied := *quote
	return &copied, nil
}

func (v *mockVenue) GetFundingRate(_ context.Context, pair string) (*models.FundingRate, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fundingErr != nil {
		return nil, v.fundingErr
	}
	rate, ok := v.funding[pair]
	if !ok {
		return nil, fmt.Errorf("no funding for %s", pair)
	}
	copied := *rate
	return &copied, nil
}

// SubmitOrder consumes submitErrs one call at a time when scripted,
// otherwise returns submitErr for every call.
func (v *mockVenue) SubmitOrder(_ context.Context, order venues.Order) (*venues.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitted = append(v.submitted, order)
	v.submitCalls++

	err := v.submitErr
	if len(v.submitErrs) > 0 {
		err = v.submitErrs[0]
		v.submitErrs = v.submitErrs[1:]
	}
	if err != nil {
		return nil, err
	}

	size := order.BaseSize
	if size.IsZero() {
		size = order.NotionalUSD.Div(v.fillPrice)
	}
	return &venues.OrderResult{
		TxSignature: fmt.Sprintf("%s-tx-%d", v.name, v.submitCalls),
		FillPrice:   v.fillPrice,
		FilledSize:  size,
		Latency:     time.Millisecond,
	}, nil
}

func (v *mockVenue) CancelOrders(context.Context, string) error { return nil }

func (v *mockVenue) orders() []venues.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]venues.Order(nil), v.submitted...)
}

// mockEscalator records escalations for assertions.
type mockEscalator struct {
	mu    sync.Mutex
	calls []string
}

func (e *mockEscalator) Escalate(_ context.Context, subject, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, subject+": "+detail)
}

func (e *mockEscalator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// testPositionStore is an in-memory PositionStore for engine tests.
type testPositionStore struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

func newTestPositionStore() *testPositionStore {
	return &testPositionStore{positions: make(map[string]*models.Position)}
}

func (s *testPositionStore) Save(_ context.Context, position *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *position
	s.positions[position.ID] = &copied
	return nil
}

func (s *testPositionStore) Update(ctx context.Context, position *models.Position) error {
	return s.Save(ctx, position)
}

func (s *testPositionStore) ListActive(_ context.Context) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]*models.Position, 0)
	for _, position := range s.positions {
		if position.Status.IsTerminal() {
			continue
		}
		copied := *position
		active = append(active, &copied)
	}
	return active, nil
}

// testLedger is an in-memory LedgerStore for engine tests.
type testLedger struct {
	mu      sync.RWMutex
	entries []models.TradeResult
}

func (l *testLedger) Append(_ context.Context, result *models.TradeResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *result)
	return nil
}

func (l *testLedger) List(_ context.Context, from time.Time) ([]models.TradeResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	matched := make([]models.TradeResult, 0, len(l.entries))
	for _, entry := range l.entries {
		if !from.IsZero() && entry.ExecutedAt.Before(from) {
			continue
		}
		matched = append(matched, entry)
	}
	return matched, nil
}
