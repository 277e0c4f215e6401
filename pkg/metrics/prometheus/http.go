package prometheus

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/relaystream/pkg/metrics"
)

func init() {
	metrics.RegisterHTTPMetricsConstructor(newHTTPMetrics)
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

var (
	httpMu  sync.Mutex
	httpReg *prometheus.Registry
	httpM   *httpMetrics
)

func newHTTPMetrics() metrics.HTTPMetrics {
	httpMu.Lock()
	defer httpMu.Unlock()

	reg := metrics.GetRegistry()
	if httpM != nil && httpReg == reg {
		return httpM
	}

	f := promauto.With(reg)
	httpM = &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaystream_http_request_duration_seconds",
			Help:    "Time to serve a request, including the whole body",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"route"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_http_response_bytes_total",
			Help: "Response body bytes by route",
		}, []string{"route"}),
	}
	httpReg = reg
	return httpM
}

func (m *httpMetrics) ObserveRequest(route, method string, status int, bytes int64, d time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
	m.bytes.WithLabelValues(route).Add(float64(bytes))
}
