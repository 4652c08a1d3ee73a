package presence

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtboard/internal/clock"
	"courtboard/internal/metrics"
)

func startMonitor(t *testing.T, f *fixture, clk *clock.Fake, m *metrics.Metrics) (*LiveMonitor, <-chan Live) {
	t.Helper()
	updates := make(chan Live, 64)
	mon := NewLiveMonitor(f.agg, LiveMonitorConfig{
		Clock:    clk,
		Metrics:  m,
		OnUpdate: func(l Live) { updates <- l },
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mon.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	clk.WaitForTickers(1)
	return mon, updates
}

func awaitLive(t *testing.T, updates <-chan Live, want func(Live) bool) Live {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case l := <-updates:
			if want(l) {
				return l
			}
		case <-deadline:
			t.Fatal("live count never reached the expected state")
			return Live{}
		}
	}
}

func TestLiveMonitorOutsideSlots(t *testing.T) {
	f := newFixture(t, PolicyAny)
	require.NoError(t, f.slots.Join(context.Background(), "u1", day, morning))
	clk := clock.NewFake(at(5, 30))
	mon, updates := startMonitor(t, f, clk, nil)

	l := awaitLive(t, updates, func(Live) bool { return true })
	assert.False(t, l.Active)
	assert.Equal(t, 0, l.Count)
	assert.Equal(t, l, mon.Current())
}

func TestLiveMonitorFollowsSlotsAndMembers(t *testing.T) {
	f := newFixture(t, PolicyAny)
	ctx := context.Background()
	require.NoError(t, f.slots.Join(ctx, "u1", day, morning))
	require.NoError(t, f.slots.Join(ctx, "u1", day, "9:00-11:00"))
	require.NoError(t, f.slots.Join(ctx, "u2", day, "9:00-11:00"))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clk := clock.NewFake(at(6, 59))
	mon, updates := startMonitor(t, f, clk, m)
	awaitLive(t, updates, func(l Live) bool { return !l.Active })

	clk.Advance(time.Minute)
	l := awaitLive(t, updates, func(l Live) bool { return l.Active && l.Count == 1 })
	assert.Equal(t, morning, l.Slot)
	assert.Equal(t, day, l.Day)

	// A membership change in the active slot recounts without a tick.
	require.NoError(t, f.slots.Join(ctx, "u2", day, morning))
	awaitLive(t, updates, func(l Live) bool { return l.Slot == morning && l.Count == 2 })

	// Changes in other slots are not the live count's business.
	require.NoError(t, f.slots.Leave(ctx, "u2", day, "9:00-11:00"))
	require.NoError(t, f.slots.Join(ctx, "u2", day, "9:00-11:00"))

	clk.Advance(2 * time.Hour)
	l = awaitLive(t, updates, func(l Live) bool { return l.Slot == "9:00-11:00" && l.Count == 2 })
	assert.Equal(t, l, mon.Current())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LiveGauge("9:00-11:00")))

	clk.Advance(2 * time.Hour)
	awaitLive(t, updates, func(l Live) bool { return !l.Active && l.Count == 0 })
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LiveGauge("none")))
}

func TestLiveMonitorRollsOverDay(t *testing.T) {
	f := newFixture(t, PolicyAny)
	ctx := context.Background()
	require.NoError(t, f.slots.Join(ctx, "u1", day, "17:00-Dawn"))
	require.NoError(t, f.slots.Join(ctx, "u1", "2024-07-16", morning))

	clk := clock.NewFake(at(23, 59))
	_, updates := startMonitor(t, f, clk, nil)
	awaitLive(t, updates, func(l Live) bool { return l.Day == day && l.Count == 1 })

	clk.Advance(time.Minute)
	l := awaitLive(t, updates, func(l Live) bool { return l.Day == "2024-07-16" })
	assert.False(t, l.Active)

	clk.Advance(7 * time.Hour)
	awaitLive(t, updates, func(l Live) bool { return l.Day == "2024-07-16" && l.Slot == morning && l.Count == 1 })
}
