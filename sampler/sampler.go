// Package sampler performs one fetch+parse attempt per tracked item.
package sampler

import (
	"context"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/buffwatch/fetch"
	"github.com/aluiziolira/buffwatch/models"
	"github.com/aluiziolira/buffwatch/parser"
)

// CacheMetrics receives parse-cache events. Implementations must tolerate
// concurrent calls; a nil CacheMetrics disables reporting.
type CacheMetrics interface {
	IncCacheHit()
	IncCacheMiss()
}

// Sampler turns one tracked item into a SampleResult. It has no side
// effects beyond the fetch itself.
type Sampler struct {
	fetcher fetch.Fetcher
	cache   *lru.Cache[uint64, []models.Offer]
	metrics CacheMetrics
}

// New builds a sampler. cacheSize bounds the parse cache; listing pages are
// frequently byte-identical between cycles, and a hit skips re-parsing.
func New(fetcher fetch.Fetcher, cacheSize int, metrics CacheMetrics) (*Sampler, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[uint64, []models.Offer](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Sampler{fetcher: fetcher, cache: cache, metrics: metrics}, nil
}

// Sample fetches the item's page and extracts its offers. A fetch failure
// is recoverable: the result carries the error and an empty price set, and
// the caller decides what to do next cycle.
func (s *Sampler) Sample(ctx context.Context, item models.TrackedItem) models.SampleResult {
	markup, err := s.fetcher.Fetch(ctx, item.SourceURL)
	if err != nil {
		return models.SampleResult{Item: item, Err: err}
	}
	return models.SampleResult{Item: item, Prices: s.parse(markup)}
}

func (s *Sampler) parse(markup string) []models.Offer {
	key := hashMarkup(markup)
	if offers, ok := s.cache.Get(key); ok {
		if s.metrics != nil {
			s.metrics.IncCacheHit()
		}
		return offers
	}
	if s.metrics != nil {
		s.metrics.IncCacheMiss()
	}

	offers := parser.ParseListings(markup)
	s.cache.Add(key, offers)
	return offers
}

func hashMarkup(markup string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(markup))
	return h.Sum64()
}
