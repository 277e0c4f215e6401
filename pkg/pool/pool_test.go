package pool

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/relaystream/pkg/upstream/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newWorkers(n int) []*Worker {
	client := memory.NewClient(memory.NewStore())
	out := make([]*Worker, n)
	for i := range out {
		out[i] = &Worker{ID: i, Name: "w", Client: client}
	}
	return out
}

func newPool(t *testing.T, n int, cfg Config) (*Pool, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p, err := New(newWorkers(n), cfg, WithClock(clock.Now))
	require.NoError(t, err)
	return p, clock
}

func inFlight(p *Pool, id int) int {
	for _, s := range p.Stats() {
		if s.ID == id {
			return s.InFlight
		}
	}
	return -1
}

func TestLeastLoadedSelection(t *testing.T) {
	p, _ := newPool(t, 3, Config{})
	assert.Equal(t, PolicyLeastLoaded, p.Policy())

	// Ties go to the lowest id, then load spreads.
	assert.Equal(t, 0, p.Acquire().ID)
	assert.Equal(t, 1, p.Acquire().ID)
	assert.Equal(t, 2, p.Acquire().ID)
	assert.Equal(t, 0, p.Acquire().ID)

	p.Release(1)
	assert.Equal(t, 1, p.Acquire().ID, "worker 1 now has the fewest in-flight")
}

func TestCooldownExcludesUntilExpiry(t *testing.T) {
	p, clock := newPool(t, 2, Config{Cooldown: time.Minute})

	p.PutOnCooldown(0)
	for i := 0; i < 5; i++ {
		w := p.Acquire()
		require.NotNil(t, w)
		assert.Equal(t, 1, w.ID, "worker 0 is cooling down")
	}

	clock.Advance(59 * time.Second)
	assert.Equal(t, 1, p.Acquire().ID)

	clock.Advance(time.Second)
	assert.Equal(t, 0, p.Acquire().ID, "cooldown expired")
}

func TestAcquireNilWhenAllCoolingDown(t *testing.T) {
	p, clock := newPool(t, 2, Config{Cooldown: 10 * time.Second})
	p.PutOnCooldown(0)
	p.CooldownFor(1, 3*time.Second)

	assert.Nil(t, p.Acquire())
	assert.Equal(t, 3*time.Second, p.NextAvailable())

	clock.Advance(3 * time.Second)
	assert.Zero(t, p.NextAvailable())
	w := p.Acquire()
	require.NotNil(t, w)
	assert.Equal(t, 1, w.ID)
}

func TestCooldownForKeepsLonger(t *testing.T) {
	p, clock := newPool(t, 1, Config{Cooldown: time.Minute})
	p.PutOnCooldown(0)
	p.CooldownFor(0, time.Second)

	clock.Advance(2 * time.Second)
	assert.Nil(t, p.Acquire(), "shorter cooldown must not shorten the existing one")
}

func TestReleaseNeverNegative(t *testing.T) {
	p, _ := newPool(t, 2, Config{})

	p.Release(0)
	p.Release(0)
	p.Release(42)
	assert.Equal(t, 0, inFlight(p, 0))

	w := p.Acquire()
	p.Release(w.ID)
	p.Release(w.ID)
	assert.Equal(t, 0, inFlight(p, w.ID))
}

func TestConcurrentAcquireRelease(t *testing.T) {
	p, _ := newPool(t, 4, Config{})

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 500; i++ {
				w := p.Acquire()
				if w == nil {
					continue
				}
				if r.Intn(10) == 0 {
					p.Release(w.ID) // double release
				}
				p.Release(w.ID)
			}
		}(int64(g))
	}
	wg.Wait()

	for _, s := range p.Stats() {
		assert.GreaterOrEqual(t, s.InFlight, 0)
		assert.Zero(t, s.InFlight)
	}
}

func TestRoundRobinSkipsCooldown(t *testing.T) {
	p, clock := newPool(t, 3, Config{Policy: PolicyRoundRobin, Cooldown: time.Minute})

	var got []int
	for i := 0; i < 4; i++ {
		got = append(got, p.Acquire().ID)
	}
	assert.Equal(t, []int{0, 1, 2, 0}, got)

	p.PutOnCooldown(1)
	got = got[:0]
	for i := 0; i < 4; i++ {
		got = append(got, p.Acquire().ID)
	}
	assert.Equal(t, []int{2, 0, 2, 0}, got)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, p.Acquire().ID)
}

func TestFailureThresholdTripsCooldown(t *testing.T) {
	p, _ := newPool(t, 2, Config{FailureThreshold: 2})

	p.ReportFailure(0)
	p.ReportSuccess(0)
	p.ReportFailure(0)
	assert.False(t, p.Stats()[0].CoolingDown, "success resets the streak")

	p.ReportFailure(0)
	stats := p.Stats()[0]
	assert.True(t, stats.CoolingDown)
	assert.NotNil(t, stats.CooldownUntil)
	assert.Equal(t, uint64(1), stats.Cooldowns)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)

	_, err = New(newWorkers(1), Config{Policy: "random"})
	assert.Error(t, err)

	dup := newWorkers(2)
	dup[1].ID = 0
	_, err = New(dup, Config{})
	assert.Error(t, err)

	_, err = New([]*Worker{{ID: 1}}, Config{})
	assert.Error(t, err)
}
