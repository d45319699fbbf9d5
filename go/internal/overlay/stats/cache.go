package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcdev12/deckoverlay/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Format buckets understood by the analytics backend
const (
	BucketStandard = "RANKED_STANDARD"
	BucketWild     = "RANKED_WILD"
	BucketClassic  = "RANKED_CLASSIC"
)

// FormatBucket maps a deck format to its analytics partition. Unknown formats
// fall into the wild bucket.
func FormatBucket(format models.FormatType) string {
	switch format {
	case models.FormatTypeStandard:
		return BucketStandard
	case models.FormatTypeClassic:
		return BucketClassic
	default:
		return BucketWild
	}
}

// Fetcher retrieves the analytics payload for one card in one bucket
type Fetcher interface {
	CardStatistics(ctx context.Context, cardID models.CardID, bucket string) (json.RawMessage, error)
}

type cacheKey struct {
	bucket string
	cardID models.CardID
}

// Cache memoizes card statistics for the lifetime of the process. Entries are
// never evicted or overwritten and failures are never cached.
type Cache struct {
	fetcher Fetcher

	mu      sync.RWMutex
	entries map[cacheKey]json.RawMessage

	inflight singleflight.Group
}

// NewCache creates an empty cache backed by fetcher
func NewCache(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		entries: make(map[cacheKey]json.RawMessage),
	}
}

// FetchStatistics returns the statistics for a card, fetching them on the first
// request for its (bucket, card) key. Concurrent misses on the same key share a
// single outbound request.
func (c *Cache) FetchStatistics(ctx context.Context, cardID models.CardID, format models.FormatType) (json.RawMessage, error) {
	key := cacheKey{bucket: FormatBucket(format), cardID: cardID}

	if payload, ok := c.lookup(key); ok {
		return payload, nil
	}

	result, err, shared := c.inflight.Do(fmt.Sprintf("%s/%d", key.bucket, key.cardID), func() (interface{}, error) {
		// a previous flight may have filled the entry while we were waiting
		if payload, ok := c.lookup(key); ok {
			return payload, nil
		}

		payload, err := c.fetcher.CardStatistics(ctx, key.cardID, key.bucket)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if existing, ok := c.entries[key]; ok {
			payload = existing
		} else {
			c.entries[key] = payload
		}
		c.mu.Unlock()
		return payload, nil
	})
	if err != nil {
		log.Warn().
			Err(err).
			Int("card_id", int(cardID)).
			Str("bucket", key.bucket).
			Msg("failed to fetch card statistics")
		return nil, fmt.Errorf("fetch statistics for card %d: %w", cardID, err)
	}

	log.Debug().
		Int("card_id", int(cardID)).
		Str("bucket", key.bucket).
		Bool("shared", shared).
		Msg("card statistics cached")

	return result.(json.RawMessage), nil
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(key cacheKey) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.entries[key]
	return payload, ok
}
