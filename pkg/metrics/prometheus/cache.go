// Package prometheus implements the metrics sinks with client_golang.
// Importing it for side effects enables them:
//
//	import _ "github.com/marmos91/relaystream/pkg/metrics/prometheus"
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/metrics"
)

func init() {
	metrics.RegisterCacheMetricsConstructor(newCacheMetrics)
}

var (
	latencyBuckets = []float64{
		0.1, // 100us, memory hits
		0.5,
		1,
		5, // 5ms, badger value log reads
		10,
		50,
		100,
		500,
		1000, // 1s, slow upstream
		5000,
	}
	chunkBuckets = []float64{
		4096,
		65536,
		262144,
		524288,
		1048576, // one full chunk
	}
)

type cacheVecs struct {
	gets      *prometheus.CounterVec
	getTime   *prometheus.HistogramVec
	puts      *prometheus.CounterVec
	putTime   *prometheus.HistogramVec
	bytesRead *prometheus.CounterVec
	bytesPut  *prometheus.HistogramVec
	evictions *prometheus.CounterVec
	entries   *prometheus.GaugeVec
	size      *prometheus.GaugeVec
}

// One set of vectors per registry: promauto panics on double registration
// and several caches may share a process.
var (
	cacheMu   sync.Mutex
	cacheReg  *prometheus.Registry
	cacheVecV *cacheVecs
)

func getCacheVecs() *cacheVecs {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	reg := metrics.GetRegistry()
	if cacheVecV != nil && cacheReg == reg {
		return cacheVecV
	}

	f := promauto.With(reg)
	cacheVecV = &cacheVecs{
		gets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_cache_gets_total",
			Help: "Chunk cache lookups by result",
		}, []string{"cache_type", "result"}), // result: hit, miss
		getTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaystream_cache_get_duration_milliseconds",
			Help:    "Duration of chunk cache lookups in milliseconds",
			Buckets: latencyBuckets,
		}, []string{"cache_type"}),
		puts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_cache_puts_total",
			Help: "Chunks written to the cache",
		}, []string{"cache_type"}),
		putTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaystream_cache_put_duration_milliseconds",
			Help:    "Duration of chunk cache writes in milliseconds",
			Buckets: latencyBuckets,
		}, []string{"cache_type"}),
		bytesRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_cache_read_bytes_total",
			Help: "Bytes served from the chunk cache",
		}, []string{"cache_type"}),
		bytesPut: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaystream_cache_put_bytes",
			Help:    "Size distribution of chunks written to the cache",
			Buckets: chunkBuckets,
		}, []string{"cache_type"}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_cache_evictions_total",
			Help: "Chunks evicted to stay under capacity",
		}, []string{"cache_type"}),
		entries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relaystream_cache_entries",
			Help: "Chunks currently cached",
		}, []string{"cache_type"}),
		size: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relaystream_cache_size_bytes",
			Help: "Bytes currently cached",
		}, []string{"cache_type"}),
	}
	cacheReg = reg
	return cacheVecV
}

type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	getTime   prometheus.Observer
	puts      prometheus.Counter
	putTime   prometheus.Observer
	bytesRead prometheus.Counter
	bytesPut  prometheus.Observer
	evictions prometheus.Counter
	entries   prometheus.Gauge
	size      prometheus.Gauge
}

func newCacheMetrics(cacheType string) cache.Metrics {
	v := getCacheVecs()
	return &cacheMetrics{
		hits:      v.gets.WithLabelValues(cacheType, "hit"),
		misses:    v.gets.WithLabelValues(cacheType, "miss"),
		getTime:   v.getTime.WithLabelValues(cacheType),
		puts:      v.puts.WithLabelValues(cacheType),
		putTime:   v.putTime.WithLabelValues(cacheType),
		bytesRead: v.bytesRead.WithLabelValues(cacheType),
		bytesPut:  v.bytesPut.WithLabelValues(cacheType),
		evictions: v.evictions.WithLabelValues(cacheType),
		entries:   v.entries.WithLabelValues(cacheType),
		size:      v.size.WithLabelValues(cacheType),
	}
}

func (m *cacheMetrics) ObserveGet(hit bool, bytes int, d time.Duration) {
	if hit {
		m.hits.Inc()
		m.bytesRead.Add(float64(bytes))
	} else {
		m.misses.Inc()
	}
	m.getTime.Observe(ms(d))
}

func (m *cacheMetrics) ObservePut(bytes int, d time.Duration) {
	m.puts.Inc()
	m.bytesPut.Observe(float64(bytes))
	m.putTime.Observe(ms(d))
}

func (m *cacheMetrics) RecordEvictions(n int) {
	m.evictions.Add(float64(n))
}

func (m *cacheMetrics) RecordSize(entries int, bytes int64) {
	m.entries.Set(float64(entries))
	m.size.Set(float64(bytes))
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
