package venues

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/perparb/internal/models"
)

// ErrSigning marks wallet/signing failures. They are fatal for the
// current action only; the scheduler keeps running and persistent
// repeats are escalated by the position manager.
var ErrSigning = errors.New("signing failed")

// Signer is the opaque signing capability handed in by the host process.
// Key loading and storage are not this module's concern.
type Signer interface {
	PublicKey() string
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// OrderSide is the direction of an order from the venue's point of view.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// Order is a request to open or reduce exposure on one venue.
type Order struct {
	Pair        string
	Side        OrderSide
	NotionalUSD decimal.Decimal
	// BaseSize overrides NotionalUSD when set; used for reduce-only
	// closes where the exact entry size must be matched.
	BaseSize   decimal.Decimal
	ReduceOnly bool
	// MaxSlippageBps bounds acceptable fill deviation; the venue rejects
	// the order rather than fill past it.
	MaxSlippageBps int
}

// OrderResult reports a filled order.
type OrderResult struct {
	TxSignature string
	FillPrice   decimal.Decimal
	FilledSize  decimal.Decimal
	Latency     time.Duration
}

// VenueAdapter is the capability the engine requires of every trading
// venue. Implementations either succeed, fail, or time out; the engine
// treats them as black boxes. Two submissions signed by the same key
// must be serialized inside the adapter.
type VenueAdapter interface {
	Name() string
	FundingIntervalHours() int
	GetQuote(ctx context.Context, pair string) (*models.PriceQuote, error)
	GetFundingRate(ctx context.Context, pair string) (*models.FundingRate, error)
	SubmitOrder(ctx context.Context, order Order) (*OrderResult, error)
	CancelOrders(ctx context.Context, pair string) error
}
