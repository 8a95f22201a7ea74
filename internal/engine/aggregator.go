package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quantfold/perparb/internal/models"
	"github.com/quantfold/perparb/internal/venues"
)

// Snapshot is one cycle's fully-joined view of the market. Partial
// results are valid: venues that errored or timed out this cycle are
// listed in FailedVenues and simply absent from the maps.
type Snapshot struct {
	// Quotes and Funding are keyed pair -> venue.
	Quotes       map[string]map[string]*models.PriceQuote
	Funding      map[string]map[string]*models.FundingRate
	FailedVenues []string
	Timestamp    time.Time
}

// NewSnapshot returns an empty snapshot stamped now.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Quotes:    make(map[string]map[string]*models.PriceQuote),
		Funding:   make(map[string]map[string]*models.FundingRate),
		Timestamp: time.Now(),
	}
}

// FundingFor returns the funding rate for a pair on a venue, if present.
func (s *Snapshot) FundingFor(pair, venue string) (*models.FundingRate, bool) {
	byVenue, ok := s.Funding[pair]
	if !ok {
		return nil, false
	}
	rate, ok := byVenue[venue]
	return rate, ok
}

// QuoteFor returns the quote for a pair on a venue, if present.
func (s *Snapshot) QuoteFor(pair, venue string) (*models.PriceQuote, bool) {
	byVenue, ok := s.Quotes[pair]
	if !ok {
		return nil, false
	}
	quote, ok := byVenue[venue]
	return quote, ok
}

// AggregatorConfig bounds one collection cycle.
type AggregatorConfig struct {
	Markets      []string
	VenueTimeout time.Duration
}

// Aggregator polls every configured venue concurrently each cycle and
// joins the results into a single snapshot. A slow or broken venue
// costs at most its timeout and never aborts the cycle.
type Aggregator struct {
	registry *venues.Registry
	config   AggregatorConfig
	logger   *logrus.Logger
}

func NewAggregator(registry *venues.Registry, config AggregatorConfig, logger *logrus.Logger) *Aggregator {
	if config.VenueTimeout <= 0 {
		config.VenueTimeout = 10 * time.Second
	}
	return &Aggregator{
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// Collect queries all venues for quotes and funding rates on every
// configured market. It retries nothing; a failed venue is skipped this
// cycle and picked up again on the next one.
func (a *Aggregator) Collect(ctx context.Context) *Snapshot {
	snapshot := NewSnapshot()

	var mu sync.Mutex
	var g errgroup.Group

	for _, adapter := range a.registry.All() {
		adapter := adapter
		g.Go(func() error {
			venueCtx, cancel := context.WithTimeout(ctx, a.config.VenueTimeout)
			defer cancel()

			quotes, funding, err := a.collectVenue(venueCtx, adapter)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.WithFields(logrus.Fields{
					"venue": adapter.Name(),
				}).WithError(err).Warn("Venue excluded from this cycle")
				snapshot.FailedVenues = append(snapshot.FailedVenues, adapter.Name())
				return nil
			}
			for _, quote := range quotes {
				byVenue, ok := snapshot.Quotes[quote.Pair]
				if !ok {
					byVenue = make(map[string]*models.PriceQuote)
					snapshot.Quotes[quote.Pair] = byVenue
				}
				byVenue[quote.Venue] = quote
			}
			for _, rate := range funding {
				byVenue, ok := snapshot.Funding[rate.Pair]
				if !ok {
					byVenue = make(map[string]*models.FundingRate)
					snapshot.Funding[rate.Pair] = byVenue
				}
				byVenue[rate.Venue] = rate
			}
			return nil
		})
	}

	// Goroutines never return errors; failures are recorded per venue.
	_ = g.Wait()
	sort.Strings(snapshot.FailedVenues)

	a.logger.WithFields(logrus.Fields{
		"pairs_quoted":  len(snapshot.Quotes),
		"failed_venues": snapshot.FailedVenues,
	}).Debug("Market data cycle complete")

	return snapshot
}

// collectVenue fetches all configured markets from one venue. The first
// error discards the venue's partial results so a snapshot never mixes a
// venue's fresh and missing data.
func (a *Aggregator) collectVenue(ctx context.Context, adapter venues.VenueAdapter) ([]*models.PriceQuote, []*models.FundingRate, error) {
	quotes := make([]*models.PriceQuote, 0, len(a.config.Markets))
	funding := make([]*models.FundingRate, 0, len(a.config.Markets))

	for _, pair := range a.config.Markets {
		quote, err := adapter.GetQuote(ctx, pair)
		if err != nil {
			return nil, nil, err
		}
		rate, err := adapter.GetFundingRate(ctx, pair)
		if err != nil {
			return nil, nil, err
		}
		quotes = append(quotes, quote)
		funding = append(funding, rate)
	}
	return quotes, funding, nil
}
