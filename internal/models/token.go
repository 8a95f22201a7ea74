package models

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// TokenInfo describes one tradable instrument on one venue. Decimals
// is the venue's base-unit precision; conversion happens only at the
// venue boundary, everything above it works in decimal amounts.
type TokenInfo struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	VenueID  string          `json:"venue_id"`
	Decimals int             `json:"decimals"`
	Price    decimal.Decimal `json:"price"`
}

// ToBaseUnits converts a decimal amount to the venue's integer base
// units, truncating any sub-unit remainder.
func (t *TokenInfo) ToBaseUnits(amount decimal.Decimal) int64 {
	return amount.Shift(int32(t.Decimals)).IntPart()
}

// FromBaseUnits converts integer base units back to a decimal amount.
func (t *TokenInfo) FromBaseUnits(baseUnits int64) decimal.Decimal {
	return decimal.NewFromInt(baseUnits).Shift(int32(-t.Decimals))
}

// TokenRegistry holds the instruments the engine trades. It is always
// injected, never a package global, so tests run isolated registries.
type TokenRegistry struct {
	mu     sync.RWMutex
	tokens map[string]TokenInfo
}

func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{tokens: make(map[string]TokenInfo)}
}

// Register adds a token. Duplicate symbols and negative decimals are
// rejected.
func (r *TokenRegistry) Register(token TokenInfo) error {
	if token.Symbol == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if token.Decimals < 0 {
		return fmt.Errorf("token %s: decimals must not be negative, got %d", token.Symbol, token.Decimals)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[token.Symbol]; exists {
		return fmt.Errorf("token %s is already registered", token.Symbol)
	}
	r.tokens[token.Symbol] = token
	return nil
}

// Get returns a copy of the token for symbol.
func (r *TokenRegistry) Get(symbol string) (TokenInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[symbol]
	if !ok {
		return TokenInfo{}, fmt.Errorf("token %s is not registered", symbol)
	}
	return token, nil
}

// UpdatePrice refreshes the reference price of a registered token.
func (r *TokenRegistry) UpdatePrice(symbol string, price decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[symbol]
	if !ok {
		return fmt.Errorf("token %s is not registered", symbol)
	}
	token.Price = price
	r.tokens[symbol] = token
	return nil
}

// Symbols lists all registered symbols.
func (r *TokenRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	symbols := make([]string, 0, len(r.tokens))
	for symbol := range r.tokens {
		symbols = append(symbols, symbol)
	}
	return symbols
}
