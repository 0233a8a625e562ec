package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCacheHits   = "codeindex.cache.hits"
	metricCacheMisses = "codeindex.cache.misses"
)

// CacheStatsProvider exposes cumulative cache hit/miss counters for OTel
// export. The Progress Reporter implements this directly over its live
// ProgressState.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
}

// NamedCacheProvider labels a CacheStatsProvider for the "cache" attribute
// on the registered gauges, so more than one cache (e.g. a future
// second-level cache) can be distinguished in exported metrics.
type NamedCacheProvider struct {
	Name     string
	Provider CacheStatsProvider
}

// RegisterCacheMetrics registers observable gauges reporting cache hit/miss
// counts for each named provider. A nil Provider is skipped. Safe to call
// with zero providers, in which case it is a no-op.
func RegisterCacheMetrics(mt metric.Meter, providers ...NamedCacheProvider) error {
	active := make([]NamedCacheProvider, 0, len(providers))

	for _, p := range providers {
		if p.Provider != nil {
			active = append(active, p)
		}
	}

	if len(active) == 0 {
		return nil
	}

	_, err := mt.Int64ObservableGauge(metricCacheHits,
		metric.WithDescription("Cache hit count"),
		metric.WithUnit("{hit}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, p := range active {
				o.Observe(p.Provider.CacheHits(), metric.WithAttributes(attribute.String("cache", p.Name)))
			}

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheHits, err)
	}

	_, err = mt.Int64ObservableGauge(metricCacheMisses,
		metric.WithDescription("Cache miss count"),
		metric.WithUnit("{miss}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, p := range active {
				o.Observe(p.Provider.CacheMisses(), metric.WithAttributes(attribute.String("cache", p.Name)))
			}

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheMisses, err)
	}

	return nil
}
