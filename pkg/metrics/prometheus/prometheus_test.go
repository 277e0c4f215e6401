package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/relaystream/pkg/metrics"
	"github.com/marmos91/relaystream/pkg/stream"
	"github.com/marmos91/relaystream/pkg/upstream"
)

func TestSinksRecord(t *testing.T) {
	metrics.InitRegistry()

	c := metrics.NewCacheMetrics("memory")
	require.NotNil(t, c)
	c.ObserveGet(true, 1024, time.Millisecond)
	c.ObserveGet(false, 0, time.Millisecond)
	c.RecordEvictions(2)
	c.RecordSize(3, 3072)

	cm := c.(*cacheMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.misses))
	assert.Equal(t, 2.0, testutil.ToFloat64(cm.evictions))
	assert.Equal(t, 3072.0, testutil.ToFloat64(cm.size))

	again := metrics.NewCacheMetrics("badger")
	require.NotNil(t, again, "second cache type shares the vectors")

	p := metrics.NewPoolMetrics().(*poolMetrics)
	p.RecordAcquire(1, true)
	p.RecordAcquire(0, false)
	p.RecordCooldown(1, 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.acquires.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.acquires.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cooldowns.WithLabelValues("1")))

	s := metrics.NewStreamMetrics().(*streamMetrics)
	s.StreamOpened()
	s.UpstreamCall("open", &upstream.RateLimitedError{Wait: time.Second}, time.Millisecond)
	s.StreamClosed(100, time.Second, &stream.FatalError{Err: errors.New("x")})
	assert.Equal(t, 0.0, testutil.ToFloat64(s.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.streams.WithLabelValues("fatal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.calls.WithLabelValues("open", "rate_limited")))

	h := metrics.NewHTTPMetrics().(*httpMetrics)
	h.ObserveRequest("/stream/{link}", "GET", 206, 10, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.requests.WithLabelValues("/stream/{link}", "GET", "206")))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "canceled", outcome(context.Canceled))
	assert.Equal(t, "fatal", outcome(&stream.FatalError{Err: errors.New("x")}))
	assert.Equal(t, "error", outcome(errors.New("x")))
}
