package prometheus

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/relaystream/pkg/metrics"
	"github.com/marmos91/relaystream/pkg/pool"
)

func init() {
	metrics.RegisterPoolMetricsConstructor(newPoolMetrics)
}

type poolMetrics struct {
	acquires  *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
	cooldowns *prometheus.CounterVec
	cooldown  *prometheus.HistogramVec
}

var (
	poolMu  sync.Mutex
	poolReg *prometheus.Registry
	poolM   *poolMetrics
)

func newPoolMetrics() pool.Metrics {
	poolMu.Lock()
	defer poolMu.Unlock()

	reg := metrics.GetRegistry()
	if poolM != nil && poolReg == reg {
		return poolM
	}

	f := promauto.With(reg)
	poolM = &poolMetrics{
		acquires: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_pool_acquires_total",
			Help: "Worker acquisitions; worker=\"none\" when every worker was cooling down",
		}, []string{"worker"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relaystream_pool_in_flight",
			Help: "Upstream reads currently held per worker",
		}, []string{"worker"}),
		cooldowns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaystream_pool_cooldowns_total",
			Help: "Times a worker was put on cooldown",
		}, []string{"worker"}),
		cooldown: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaystream_pool_cooldown_seconds",
			Help:    "Length of worker cooldowns",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
		}, []string{"worker"}),
	}
	poolReg = reg
	return poolM
}

func workerLabel(id int) string {
	if id < 0 {
		return "none"
	}
	return strconv.Itoa(id)
}

func (m *poolMetrics) RecordAcquire(workerID int, ok bool) {
	if !ok {
		workerID = -1
	}
	m.acquires.WithLabelValues(workerLabel(workerID)).Inc()
}

func (m *poolMetrics) RecordInFlight(workerID int, n int) {
	m.inFlight.WithLabelValues(workerLabel(workerID)).Set(float64(n))
}

func (m *poolMetrics) RecordCooldown(workerID int, d time.Duration) {
	label := workerLabel(workerID)
	m.cooldowns.WithLabelValues(label).Inc()
	m.cooldown.WithLabelValues(label).Observe(d.Seconds())
}
