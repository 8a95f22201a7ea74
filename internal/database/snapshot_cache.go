package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/perparb/internal/engine"
	"github.com/quantfold/perparb/internal/models"
)

const (
	quoteKeyPrefix   = "perparb:quote:"
	fundingKeyPrefix = "perparb:funding:"
	opportunitiesKey = "perparb:opportunities"
	failedVenuesKey  = "perparb:failed_venues"
	snapshotCacheTTL = 5 * time.Minute
	opportunitiesTTL = 5 * time.Minute
)

var _ engine.SnapshotSink = (*SnapshotCache)(nil)

// SnapshotCache publishes each cycle's market view into redis with a
// short TTL. The status API reads from here so it never reaches into
// the engine's internals.
type SnapshotCache struct {
	client *redis.Client
}

func NewSnapshotCache(client *redis.Client) *SnapshotCache {
	return &SnapshotCache{client: client}
}

// StoreSnapshot caches every quote and funding rate in the snapshot.
func (c *SnapshotCache) StoreSnapshot(ctx context.Context, snapshot *engine.Snapshot) error {
	pipe := c.client.Pipeline()
	for pair, byVenue := range snapshot.Quotes {
		for venue, quote := range byVenue {
			payload, err := json.Marshal(quote)
			if err != nil {
				return fmt.Errorf("failed to marshal quote %s/%s: %w", venue, pair, err)
			}
			pipe.Set(ctx, quoteKeyPrefix+venue+":"+pair, payload, snapshotCacheTTL)
		}
	}
	for pair, byVenue := range snapshot.Funding {
		for venue, rate := range byVenue {
			payload, err := json.Marshal(rate)
			if err != nil {
				return fmt.Errorf("failed to marshal funding %s/%s: %w", venue, pair, err)
			}
			pipe.Set(ctx, fundingKeyPrefix+venue+":"+pair, payload, snapshotCacheTTL)
		}
	}
	failed, err := json.Marshal(snapshot.FailedVenues)
	if err != nil {
		return fmt.Errorf("failed to marshal failed venues: %w", err)
	}
	pipe.Set(ctx, failedVenuesKey, failed, snapshotCacheTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// StoreOpportunities caches the latest scan's ranked opportunities.
func (c *SnapshotCache) StoreOpportunities(ctx context.Context, opportunities []models.ArbitrageOpportunity) error {
	payload, err := json.Marshal(opportunities)
	if err != nil {
		return fmt.Errorf("failed to marshal opportunities: %w", err)
	}
	if err := c.client.Set(ctx, opportunitiesKey, payload, opportunitiesTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache opportunities: %w", err)
	}
	return nil
}

// Opportunities returns the latest cached scan results, or an empty
// slice when the cache has expired.
func (c *SnapshotCache) Opportunities(ctx context.Context) ([]models.ArbitrageOpportunity, error) {
	payload, err := c.client.Get(ctx, opportunitiesKey).Bytes()
	if err == redis.Nil {
		return []models.ArbitrageOpportunity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached opportunities: %w", err)
	}
	var opportunities []models.ArbitrageOpportunity
	if err := json.Unmarshal(payload, &opportunities); err != nil {
		return nil, fmt.Errorf("failed to decode cached opportunities: %w", err)
	}
	return opportunities, nil
}

// Quote returns one cached quote if present.
func (c *SnapshotCache) Quote(ctx context.Context, venue, pair string) (*models.PriceQuote, error) {
	payload, err := c.client.Get(ctx, quoteKeyPrefix+venue+":"+pair).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached quote: %w", err)
	}
	var quote models.PriceQuote
	if err := json.Unmarshal(payload, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode cached quote: %w", err)
	}
	return &quote, nil
}

// FailedVenues returns the venues excluded from the latest cycle.
func (c *SnapshotCache) FailedVenues(ctx context.Context) ([]string, error) {
	payload, err := c.client.Get(ctx, failedVenuesKey).Bytes()
	if err == redis.Nil {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read failed venues: %w", err)
	}
	var venues []string
	if err := json.Unmarshal(payload, &venues); err != nil {
		return nil, fmt.Errorf("failed to decode failed venues: %w", err)
	}
	return venues, nil
}
