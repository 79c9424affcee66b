package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const cacheScopeName = "github.com/taskdeck/deck/cache"

// CacheMetrics counts polling cache activity. The zero value is not usable;
// build one with NewCacheMetrics.
type CacheMetrics struct {
	fetches metric.Int64Counter
	errors  metric.Int64Counter
	entries metric.Int64UpDownCounter
}

// NewCacheMetrics registers the deck.cache.* instruments on the global meter
// provider (no-op instruments when telemetry is disabled).
func NewCacheMetrics() *CacheMetrics {
	m := Meter(cacheScopeName)
	fetches, _ := m.Int64Counter("deck.cache.fetches",
		metric.WithDescription("Fetches started by the polling cache"),
	)
	errs, _ := m.Int64Counter("deck.cache.fetch.errors",
		metric.WithDescription("Polling cache fetches that failed"),
	)
	entries, _ := m.Int64UpDownCounter("deck.cache.entries",
		metric.WithDescription("Live polling cache entries"),
	)
	return &CacheMetrics{fetches: fetches, errors: errs, entries: entries}
}

// Fetch records a fetch for key; failed reports whether it errored.
func (c *CacheMetrics) Fetch(ctx context.Context, key string, failed bool) {
	if c == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cache.key", keyFamily(key)))
	c.fetches.Add(ctx, 1, attrs)
	if failed {
		c.errors.Add(ctx, 1, attrs)
	}
}

// EntryAdded and EntryDropped track the number of live entries.
func (c *CacheMetrics) EntryAdded(ctx context.Context) {
	if c != nil {
		c.entries.Add(ctx, 1)
	}
}

func (c *CacheMetrics) EntryDropped(ctx context.Context) {
	if c != nil {
		c.entries.Add(ctx, -1)
	}
}

// keyFamily strips the query string so metric cardinality stays bounded.
func keyFamily(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '?' {
			return key[:i]
		}
	}
	return key
}
