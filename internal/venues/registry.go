package venues

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// fundingIntervals maps venue name to hours between funding payments.
// Venues settle on different cadences, so annualization must use the
// venue's own interval, never a global constant.
var fundingIntervals = map[string]int{
	"binance":     8,
	"bybit":       8,
	"okx":         8,
	"hyperliquid": 1,
	"drift":       1,
}

const defaultFundingIntervalHours = 8

// IntervalHours returns the funding interval for a venue, falling back
// to the common 8-hour cadence for unknown venues.
func IntervalHours(venue string) int {
	if hours, ok := fundingIntervals[venue]; ok {
		return hours
	}
	return defaultFundingIntervalHours
}

var titleCaser = cases.Title(language.English)

// DisplayName renders a venue name for logs and API responses.
func DisplayName(venue string) string {
	return titleCaser.String(venue)
}

// Registry holds the configured venue adapters by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]VenueAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]VenueAdapter)}
}

func (r *Registry) Register(adapter VenueAdapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("venue %s is already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

func (r *Registry) Get(name string) (VenueAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("venue %s is not registered", name)
	}
	return adapter, nil
}

// Names returns registered venue names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered adapters in stable name order.
func (r *Registry) All() []VenueAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	adapters := make([]VenueAdapter, 0, len(names))
	for _, name := range names {
		adapters = append(adapters, r.adapters[name])
	}
	return adapters
}
