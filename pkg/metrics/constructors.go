package metrics

import (
	"time"

	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/stream"
)

// HTTPMetrics observes served requests.
type HTTPMetrics interface {
	ObserveRequest(route, method string, status int, bytes int64, d time.Duration)
}

// The Prometheus package fills these in from its init functions, which keeps
// this package free of an import cycle.
var (
	newCacheMetrics  func(cacheType string) cache.Metrics
	newPoolMetrics   func() pool.Metrics
	newStreamMetrics func() stream.Metrics
	newHTTPMetrics   func() HTTPMetrics
)

func RegisterCacheMetricsConstructor(fn func(cacheType string) cache.Metrics) {
	newCacheMetrics = fn
}

func RegisterPoolMetricsConstructor(fn func() pool.Metrics) {
	newPoolMetrics = fn
}

func RegisterStreamMetricsConstructor(fn func() stream.Metrics) {
	newStreamMetrics = fn
}

func RegisterHTTPMetricsConstructor(fn func() HTTPMetrics) {
	newHTTPMetrics = fn
}

// NewCacheMetrics returns a sink labelled with cacheType, or nil when
// metrics are disabled.
//
//	metrics.InitRegistry()
//	c, err := badger.Open(ctx, cfg, metrics.NewCacheMetrics("badger"))
func NewCacheMetrics(cacheType string) cache.Metrics {
	if !IsEnabled() || newCacheMetrics == nil {
		return nil
	}
	return newCacheMetrics(cacheType)
}

// NewPoolMetrics returns a worker pool sink, or nil when disabled.
func NewPoolMetrics() pool.Metrics {
	if !IsEnabled() || newPoolMetrics == nil {
		return nil
	}
	return newPoolMetrics()
}

// NewStreamMetrics returns a streaming engine sink, or nil when disabled.
func NewStreamMetrics() stream.Metrics {
	if !IsEnabled() || newStreamMetrics == nil {
		return nil
	}
	return newStreamMetrics()
}

// NewHTTPMetrics returns an HTTP sink, or nil when disabled.
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() || newHTTPMetrics == nil {
		return nil
	}
	return newHTTPMetrics()
}
