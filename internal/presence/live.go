package presence

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"courtboard/internal/calendar"
	"courtboard/internal/clock"
	"courtboard/internal/kv"
	"courtboard/internal/metrics"
)

// DefaultLiveRefresh is how often the monitor re-evaluates the active slot.
const DefaultLiveRefresh = time.Minute

// LiveMonitorConfig configures a LiveMonitor. Zero values get defaults.
type LiveMonitorConfig struct {
	Clock    clock.Clock
	Interval time.Duration
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// OnUpdate receives every new count on the monitor's loop.
	OnUpdate func(Live)
}

// LiveMonitor keeps the live count current. Each tick re-evaluates which
// slot is active, moving its subscription when the slot or day changes,
// and recounts; membership notifications for the active slot recount
// immediately.
type LiveMonitor struct {
	agg      *Aggregator
	clock    clock.Clock
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	onUpdate func(Live)

	loop    *loop
	current atomic.Pointer[Live]

	// Owned by the loop.
	ctx  context.Context
	key  liveKey
	gen  uint64
	sub  kv.Subscription
	live Live
}

type liveKey struct {
	day    calendar.Day
	slot   string
	active bool
}

// NewLiveMonitor returns a monitor; call Run to start it.
func NewLiveMonitor(agg *Aggregator, cfg LiveMonitorConfig) *LiveMonitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultLiveRefresh
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	m := &LiveMonitor{
		agg:      agg,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		onUpdate: cfg.OnUpdate,
		loop:     newLoop(),
	}
	m.current.Store(&Live{})
	return m
}

// Current returns the latest count.
func (m *LiveMonitor) Current() Live { return *m.current.Load() }

// Run evaluates immediately and then on every tick until ctx is done.
func (m *LiveMonitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()
	m.ctx = ctx
	m.evaluate()
	m.loop.run(ctx, ticker.C, m.evaluate)
	if m.sub != nil {
		m.sub.Cancel()
	}
}

// evaluate runs on the loop.
func (m *LiveMonitor) evaluate() {
	now := m.clock.Now()
	key := liveKey{day: m.agg.Today(now)}
	if slot, ok := m.agg.SlotForTime(now); ok {
		key.slot, key.active = slot.Name, true
	}
	if key == m.key && m.gen > 0 {
		m.recount()
		return
	}

	m.key = key
	m.gen++
	if m.sub != nil {
		m.sub.Cancel()
		m.sub = nil
	}
	m.set(Live{Day: key.day, Slot: key.slot, Active: key.active})
	if !key.active {
		return
	}
	gen := m.gen
	sub, err := m.agg.slots.WatchSlot(m.ctx, key.day, key.slot, func(members []string) {
		n := len(members)
		m.loop.post(func() { m.count(gen, n) })
	})
	if err != nil {
		m.logger.Warn("live subscription failed", zap.String("slot", key.slot), zap.Error(err))
		m.recount()
		return
	}
	m.sub = sub
	m.logger.Debug("live slot changed", zap.String("day", string(key.day)), zap.String("slot", key.slot))
}

func (m *LiveMonitor) recount() {
	if !m.key.active {
		return
	}
	gen, key := m.gen, m.key
	go func() {
		n := len(m.agg.slots.MembersOfSlot(m.ctx, key.day, key.slot))
		m.loop.post(func() { m.count(gen, n) })
	}()
}

func (m *LiveMonitor) count(gen uint64, n int) {
	if gen != m.gen || n == m.live.Count {
		return
	}
	l := m.live
	l.Count = n
	m.set(l)
}

func (m *LiveMonitor) set(l Live) {
	m.live = l
	m.current.Store(&l)
	m.metrics.SetLive(l.Slot, l.Count)
	if m.onUpdate != nil {
		m.onUpdate(l)
	}
}
