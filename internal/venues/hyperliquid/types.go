package hyperliquid

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/perparb/internal/models"
)

type infoRequest struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
}

type bookLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

// l2BookResponse holds bids in levels[0] and asks in levels[1], best
// price first.
type l2BookResponse struct {
	Coin   string        `json:"coin"`
	Time   int64         `json:"time"`
	Levels [][]bookLevel `json:"levels"`
}

func (b *l2BookResponse) toQuote() (*models.PriceQuote, error) {
	if len(b.Levels) < 2 || len(b.Levels[0]) == 0 || len(b.Levels[1]) == 0 {
		return nil, fmt.Errorf("empty order book")
	}
	bid := b.Levels[0][0]
	ask := b.Levels[1][0]

	bidPrice, err := decimal.NewFromString(bid.Px)
	if err != nil {
		return nil, fmt.Errorf("bad bid price %q: %w", bid.Px, err)
	}
	askPrice, err := decimal.NewFromString(ask.Px)
	if err != nil {
		return nil, fmt.Errorf("bad ask price %q: %w", ask.Px, err)
	}
	bidSize, err := decimal.NewFromString(bid.Sz)
	if err != nil {
		return nil, fmt.Errorf("bad bid size %q: %w", bid.Sz, err)
	}
	askSize, err := decimal.NewFromString(ask.Sz)
	if err != nil {
		return nil, fmt.Errorf("bad ask size %q: %w", ask.Sz, err)
	}

	bidNotional := bidPrice.Mul(bidSize)
	askNotional := askPrice.Mul(askSize)
	liquidity := bidNotional
	if askNotional.LessThan(liquidity) {
		liquidity = askNotional
	}

	timestamp := time.UnixMilli(b.Time)
	if b.Time == 0 {
		timestamp = time.Now()
	}
	return &models.PriceQuote{
		Venue:        venueName,
		BuyPrice:     askPrice,
		SellPrice:    bidPrice,
		LiquidityUSD: liquidity,
		Timestamp:    timestamp,
	}, nil
}

type metaResponse struct {
	Universe []struct {
		Name       string `json:"name"`
		SzDecimals int    `json:"szDecimals"`
	} `json:"universe"`
}

type assetContext struct {
	Funding      string `json:"funding"`
	MarkPx       string `json:"markPx"`
	OpenInterest string `json:"openInterest"`
}

type orderRequest struct {
	Coin       string `json:"coin"`
	IsBuy      bool   `json:"isBuy"`
	Size       string `json:"sz"`
	ReduceOnly bool   `json:"reduceOnly"`
	OrderType  string `json:"orderType"`
}

type orderAction struct {
	Type   string         `json:"type"`
	Orders []orderRequest `json:"orders,omitempty"`
}

type exchangeRequest struct {
	Action    orderAction `json:"action"`
	Nonce     int64       `json:"nonce"`
	Signature string      `json:"signature"`
}

type fillStatus struct {
	Oid     int64  `json:"oid"`
	AvgPx   string `json:"avgPx"`
	TotalSz string `json:"totalSz"`
}

type exchangeResponse struct {
	Status   string `json:"status"`
	Response struct {
		Data struct {
			Statuses []struct {
				Filled *fillStatus `json:"filled"`
				Error  string      `json:"error"`
			} `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

func (r *exchangeResponse) firstFill() *fillStatus {
	for _, status := range r.Response.Data.Statuses {
		if status.Filled != nil {
			return status.Filled
		}
	}
	return nil
}
