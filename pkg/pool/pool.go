// Package pool distributes upstream calls across interchangeable worker
// credentials.
//
// Two selection policies exist and a pool uses exactly one:
//
//   - least_loaded (default): the eligible worker with the fewest in-flight
//     calls, ties going to the lowest id.
//   - round_robin: the next eligible worker after the previous pick.
//
// Under both policies a worker on cooldown is not eligible. Cooldowns expire
// lazily: selection compares cooldown_until with the clock, no timers run.
package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/pkg/upstream"
)

// Policy names a worker selection policy.
type Policy string

const (
	PolicyLeastLoaded Policy = "least_loaded"
	PolicyRoundRobin  Policy = "round_robin"
)

const (
	DefaultCooldown         = 60 * time.Second
	DefaultFailureThreshold = 3
)

// Config configures a Pool.
type Config struct {
	Policy Policy

	// Cooldown is how long PutOnCooldown excludes a worker.
	Cooldown time.Duration

	// FailureThreshold is the number of consecutive failures reported
	// through ReportFailure that puts a worker on cooldown.
	FailureThreshold int
}

// Worker is one upstream credential.
type Worker struct {
	ID     int
	Name   string
	Client upstream.Client
}

// WorkerStats is a snapshot of one worker's state.
type WorkerStats struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	InFlight      int        `json:"in_flight"`
	CoolingDown   bool       `json:"cooling_down"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Failures      int        `json:"consecutive_failures"`
	Acquired      uint64     `json:"acquired_total"`
	Cooldowns     uint64     `json:"cooldowns_total"`
}

// Metrics receives pool observations. A nil Metrics records nothing.
type Metrics interface {
	RecordAcquire(workerID int, ok bool)
	RecordInFlight(workerID int, n int)
	RecordCooldown(workerID int, d time.Duration)
}

type slot struct {
	worker        *Worker
	inFlight      int
	cooldownUntil time.Time
	failures      int
	acquired      uint64
	cooldowns     uint64
}

// Pool hands out workers. All methods are safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	slots     []*slot // sorted by worker id
	byID      map[int]*slot
	policy    Policy
	cooldown  time.Duration
	threshold int
	cursor    int

	now     func() time.Time
	metrics Metrics
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// New builds a pool over workers. Worker ids must be unique.
func New(workers []*Worker, cfg Config, opts ...Option) (*Pool, error) {
	if len(workers) == 0 {
		return nil, errors.New("pool: at least one worker is required")
	}

	switch cfg.Policy {
	case "":
		cfg.Policy = PolicyLeastLoaded
	case PolicyLeastLoaded, PolicyRoundRobin:
	default:
		return nil, fmt.Errorf("pool: unknown policy %q", cfg.Policy)
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}

	p := &Pool{
		byID:      make(map[int]*slot, len(workers)),
		policy:    cfg.Policy,
		cooldown:  cfg.Cooldown,
		threshold: cfg.FailureThreshold,
		now:       time.Now,
	}
	for _, w := range workers {
		if w == nil || w.Client == nil {
			return nil, errors.New("pool: worker without client")
		}
		if _, dup := p.byID[w.ID]; dup {
			return nil, fmt.Errorf("pool: duplicate worker id %d", w.ID)
		}
		s := &slot{worker: w}
		p.byID[w.ID] = s
		p.slots = append(p.slots, s)
	}
	sort.Slice(p.slots, func(i, j int) bool { return p.slots[i].worker.ID < p.slots[j].worker.ID })

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Policy returns the selection policy in use.
func (p *Pool) Policy() Policy {
	return p.policy
}

// Len returns the number of workers.
func (p *Pool) Len() int {
	return len(p.slots)
}

// Acquire selects a worker and increments its in-flight count. It returns
// nil when every worker is on cooldown; that condition is transient.
func (p *Pool) Acquire() *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var chosen *slot
	switch p.policy {
	case PolicyRoundRobin:
		chosen = p.pickRoundRobin(now)
	default:
		chosen = p.pickLeastLoaded(now)
	}

	if chosen == nil {
		p.recordAcquire(-1, false)
		return nil
	}
	chosen.inFlight++
	chosen.acquired++
	p.recordAcquire(chosen.worker.ID, true)
	p.recordInFlight(chosen)
	return chosen.worker
}

func (p *Pool) pickLeastLoaded(now time.Time) *slot {
	var best *slot
	for _, s := range p.slots {
		if now.Before(s.cooldownUntil) {
			continue
		}
		// Strict less keeps the lowest id on ties.
		if best == nil || s.inFlight < best.inFlight {
			best = s
		}
	}
	return best
}

func (p *Pool) pickRoundRobin(now time.Time) *slot {
	n := len(p.slots)
	for i := 0; i < n; i++ {
		s := p.slots[(p.cursor+i)%n]
		if now.Before(s.cooldownUntil) {
			continue
		}
		p.cursor = (p.cursor + i + 1) % n
		return s
	}
	return nil
}

// Release decrements the worker's in-flight count, never below zero.
// Unknown ids are ignored.
func (p *Pool) Release(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.byID[id]
	if !ok {
		return
	}
	if s.inFlight > 0 {
		s.inFlight--
	}
	p.recordInFlight(s)
}

// PutOnCooldown excludes the worker for the configured cooldown window.
func (p *Pool) PutOnCooldown(id int) {
	p.CooldownFor(id, p.cooldown)
}

// CooldownFor excludes the worker for d. An existing longer cooldown is
// kept.
func (p *Pool) CooldownFor(id int, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.byID[id]
	if !ok || d <= 0 {
		return
	}
	until := p.now().Add(d)
	if until.After(s.cooldownUntil) {
		s.cooldownUntil = until
		s.cooldowns++
		logger.Warn("Worker on cooldown",
			logger.WorkerID(id),
			logger.Wait(d),
			"worker", s.worker.Name)
		if p.metrics != nil {
			p.metrics.RecordCooldown(id, d)
		}
	}
}

// ReportSuccess clears the worker's consecutive failure count.
func (p *Pool) ReportSuccess(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.byID[id]; ok {
		s.failures = 0
	}
}

// ReportFailure counts a failed call. Reaching the failure threshold puts
// the worker on cooldown and resets the count.
func (p *Pool) ReportFailure(id int) {
	p.mu.Lock()
	s, ok := p.byID[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	s.failures++
	trip := s.failures >= p.threshold
	if trip {
		s.failures = 0
	}
	p.mu.Unlock()

	if trip {
		p.PutOnCooldown(id)
	}
}

// NextAvailable returns how long until some worker becomes eligible. It is
// zero when one is eligible now.
func (p *Pool) NextAvailable() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var soonest time.Duration = -1
	for _, s := range p.slots {
		wait := s.cooldownUntil.Sub(now)
		if wait <= 0 {
			return 0
		}
		if soonest < 0 || wait < soonest {
			soonest = wait
		}
	}
	return soonest
}

// Stats returns a snapshot of every worker, ordered by id.
func (p *Pool) Stats() []WorkerStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]WorkerStats, 0, len(p.slots))
	for _, s := range p.slots {
		ws := WorkerStats{
			ID:        s.worker.ID,
			Name:      s.worker.Name,
			InFlight:  s.inFlight,
			Failures:  s.failures,
			Acquired:  s.acquired,
			Cooldowns: s.cooldowns,
		}
		if now.Before(s.cooldownUntil) {
			until := s.cooldownUntil
			ws.CoolingDown = true
			ws.CooldownUntil = &until
		}
		out = append(out, ws)
	}
	return out
}

// Workers returns the workers in id order.
func (p *Pool) Workers() []*Worker {
	out := make([]*Worker, 0, len(p.slots))
	for _, s := range p.slots {
		out = append(out, s.worker)
	}
	return out
}

func (p *Pool) recordAcquire(id int, ok bool) {
	if p.metrics != nil {
		p.metrics.RecordAcquire(id, ok)
	}
}

func (p *Pool) recordInFlight(s *slot) {
	if p.metrics != nil {
		p.metrics.RecordInFlight(s.worker.ID, s.inFlight)
	}
}
