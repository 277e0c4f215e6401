package prometheus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/relaystream/pkg/metrics"
	"github.com/marmos91/relaystream/pkg/stream"
	"github.com/marmos91/relaystream/pkg/upstream"
)

func init() {
	metrics.RegisterStreamMetricsConstructor(newStreamMetrics)
}

type streamMetrics struct {
	active    prometheus.Gauge
	streams   *prometheus.CounterVec
	duration  prometheus.Histogram
	bytesSent prometheus.Counter
	fragments *prometheus.CounterVec
	calls     *prometheus.CounterVec
	callTime  *prometheus.HistogramVec
	retries   *prometheus.CounterVec
}

var (
	streamMu  sync.Mutex
	streamReg *prometheus.Registry
	streamM   *streamMetrics
)

func newStreamMetrics() stream.Metrics {
	streamMu.Lock()
	defer streamMu.Unlock()

	reg := metrics.GetRegistry()
	if streamM != nil && streamReg == reg {
		return streamM
	}

	f := promauto.With(reg)
	streamM = &streamMetrics{
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "relaystream_streams_active",
			Help: "Streams currently open",
		}),
		streams: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_streams_total",
			Help: "Finished streams by outcome",
		}, []string{"outcome"}), // ok, canceled, fatal, error
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaystream_stream_duration_seconds",
			Help:    "Lifetime of streams",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 9),
		}),
		bytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "relaystream_stream_bytes_total",
			Help: "Bytes delivered to clients",
		}),
		fragments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_stream_fragments_total",
			Help: "Fragments delivered by source",
		}, []string{"source"}), // cache, upstream
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_upstream_calls_total",
			Help: "Upstream calls by operation and result kind",
		}, []string{"op", "kind"}),
		callTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaystream_upstream_call_duration_milliseconds",
			Help:    "Duration of upstream calls in milliseconds",
			Buckets: latencyBuckets,
		}, []string{"op"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_upstream_retries_total",
			Help: "Retries by operation and cause",
		}, []string{"op", "kind"}),
	}
	streamReg = reg
	return streamM
}

func (m *streamMetrics) StreamOpened() {
	m.active.Inc()
}

func (m *streamMetrics) StreamClosed(bytes int64, d time.Duration, err error) {
	m.active.Dec()
	m.bytesSent.Add(float64(bytes))
	m.duration.Observe(d.Seconds())
	m.streams.WithLabelValues(outcome(err)).Inc()
}

func (m *streamMetrics) FragmentServed(fromCache bool, bytes int) {
	source := "upstream"
	if fromCache {
		source = "cache"
	}
	m.fragments.WithLabelValues(source).Inc()
}

func (m *streamMetrics) UpstreamCall(op string, err error, d time.Duration) {
	m.calls.WithLabelValues(op, upstream.Kind(err)).Inc()
	m.callTime.WithLabelValues(op).Observe(ms(d))
}

func (m *streamMetrics) Retry(op, kind string) {
	m.retries.WithLabelValues(op, kind).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case stream.IsFatal(err):
		return "fatal"
	default:
		return "error"
	}
}
