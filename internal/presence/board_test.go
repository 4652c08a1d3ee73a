package presence

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtboard/internal/attendance"
	"courtboard/internal/identity"
	"courtboard/internal/kv"
	"courtboard/internal/profile"
	"courtboard/internal/timeslot"
)

const wait = 2 * time.Second

// gatedStore holds slot writes until release is closed.
type gatedStore struct {
	kv.Store
	release chan struct{}
}

func (g *gatedStore) Set(ctx context.Context, path string, value any) error {
	if strings.HasPrefix(path, timeslot.Collection+"/") {
		<-g.release
	}
	return g.Store.Set(ctx, path, value)
}

type countingDirectory struct {
	profile.Directory
	calls atomic.Int32
}

func (d *countingDirectory) Lookup(ctx context.Context, userID string) (profile.Profile, error) {
	d.calls.Add(1)
	return d.Directory.Lookup(ctx, userID)
}

func openBoard(t *testing.T, f *fixture, viewer string) *Board {
	t.Helper()
	b, err := OpenBoard(context.Background(), f.agg, f.actions, day, viewer, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	_, err = b.WaitReady(ctx)
	require.NoError(t, err)
	return b
}

func slotView(b *Board, name string) SlotView {
	v, _ := b.Snapshot().Slot(name)
	return v
}

func TestBoardFollowsStore(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	b := openBoard(t, f, "")
	ctx := context.Background()

	snap := b.Snapshot()
	assert.True(t, snap.Ready)
	assert.Empty(t, snap.Going)
	assert.Len(t, snap.Slots, len(timeslot.DefaultSlots))

	require.NoError(t, f.att.Declare(ctx, "u1", day, attendance.StatusGoing))
	require.NoError(t, f.att.Declare(ctx, "u2", day, attendance.StatusMaybe))
	require.NoError(t, f.slots.Join(ctx, "u1", day, morning))

	require.Eventually(t, func() bool {
		s := b.Snapshot()
		return len(s.Going) == 1 && len(s.Maybe) == 1 && s.Estimated == 1 &&
			s.Going[0].Name == "Ada" && s.Maybe[0].Name == "Bo"
	}, wait, 5*time.Millisecond)

	v := slotView(b, morning)
	assert.Equal(t, []Person{{"u1", "Ada"}}, v.Members)
	assert.Equal(t, "7-9a", v.Label)
	assert.False(t, v.Joined)
}

func TestBoardOptimisticJoin(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	gate := &gatedStore{Store: f.mem, release: make(chan struct{})}
	f.slots = timeslot.NewStore(gate, timeslot.Default(), nil, nil)
	f.agg = NewAggregator(f.att, f.slots, f.agg.names, time.UTC, nil)
	f.actions = NewActions(f.att, f.slots, PolicyGoing, nil)
	require.NoError(t, f.att.Declare(context.Background(), "u1", day, attendance.StatusGoing))

	b := openBoard(t, f, "u1")
	require.Eventually(t, func() bool {
		return b.Snapshot().Status == attendance.StatusGoing
	}, wait, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- b.Join(context.Background(), morning) }()

	require.Eventually(t, func() bool {
		v := slotView(b, morning)
		return v.Joined && v.Pending
	}, wait, 5*time.Millisecond)
	assert.False(t, f.slots.IsJoined(context.Background(), "u1", day, morning))

	close(gate.release)
	require.NoError(t, <-done)
	require.Eventually(t, func() bool {
		v := slotView(b, morning)
		return v.Joined && !v.Pending
	}, wait, 5*time.Millisecond)
	assert.True(t, f.slots.IsJoined(context.Background(), "u1", day, morning))

	require.NoError(t, b.Leave(context.Background(), morning))
	require.Eventually(t, func() bool {
		v := slotView(b, morning)
		return !v.Joined && !v.Pending && len(v.Members) == 0
	}, wait, 5*time.Millisecond)
}

func TestBoardJoinFailureRollsBack(t *testing.T) {
	f := newFixture(t, PolicyAny)
	b := openBoard(t, f, "u1")

	f.mem.SetOffline(true)
	err := b.Join(context.Background(), morning)
	require.ErrorIs(t, err, kv.ErrUnavailable)

	require.Eventually(t, func() bool {
		v := slotView(b, morning)
		return !v.Joined && !v.Pending
	}, wait, 5*time.Millisecond)
}

func TestBoardEnforcesPolicy(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	require.NoError(t, f.att.Declare(context.Background(), "u1", day, attendance.StatusMaybe))
	b := openBoard(t, f, "u1")
	require.Eventually(t, func() bool {
		return b.Snapshot().Status == attendance.StatusMaybe
	}, wait, 5*time.Millisecond)

	assert.ErrorIs(t, b.Join(context.Background(), morning), ErrNotEligible)
	assert.False(t, slotView(b, morning).Pending)
	assert.ErrorIs(t, b.Join(context.Background(), "noon"), timeslot.ErrUnknownSlot)
}

func TestBoardReadOnlyViewer(t *testing.T) {
	f := newFixture(t, PolicyAny)
	b := openBoard(t, f, "")
	assert.ErrorIs(t, b.Join(context.Background(), morning), identity.ErrNotAuthenticated)
	assert.ErrorIs(t, b.Declare(context.Background(), attendance.StatusGoing), identity.ErrNotAuthenticated)
}

func TestBoardDeclareAndWithdraw(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	b := openBoard(t, f, "u1")
	ctx := context.Background()

	require.NoError(t, b.Declare(ctx, attendance.StatusGoing))
	require.Eventually(t, func() bool { return b.Snapshot().Status == attendance.StatusGoing }, wait, 5*time.Millisecond)
	require.NoError(t, b.Join(ctx, morning))

	require.NoError(t, b.Withdraw(ctx))
	require.Eventually(t, func() bool {
		s := b.Snapshot()
		v, _ := s.Slot(morning)
		return s.Status == attendance.StatusNotDecided && len(s.Going) == 0 && !v.Joined && !v.Pending
	}, wait, 5*time.Millisecond)
}

func TestBoardJoinRightAfterDeclare(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	b := openBoard(t, f, "u1")
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Declare(ctx, attendance.StatusNotDecided))
		require.NoError(t, b.Declare(ctx, attendance.StatusGoing))
		require.NoError(t, b.Join(ctx, morning), "round %d", i)
		assert.True(t, f.slots.IsJoined(ctx, "u1", day, morning))
		require.NoError(t, b.Leave(ctx, morning))
	}
}

func TestBoardRedeclareKeepsSlots(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	b := openBoard(t, f, "u1")
	ctx := context.Background()
	slots := []string{morning, "13:00-15:00"}

	require.NoError(t, b.Declare(ctx, attendance.StatusGoing))
	for _, slot := range slots {
		require.NoError(t, b.Join(ctx, slot))
	}
	for _, st := range []attendance.Status{attendance.StatusMaybe, attendance.StatusGoing} {
		require.NoError(t, b.Declare(ctx, st))
		for _, slot := range slots {
			assert.Equal(t, []string{"u1"}, f.slots.MembersOfSlot(ctx, day, slot), "%s after %s", slot, st)
		}
		require.Eventually(t, func() bool {
			s := b.Snapshot()
			return s.Status == st && slotView(b, morning).Joined && slotView(b, "13:00-15:00").Joined
		}, wait, 5*time.Millisecond)
	}
}

func TestBoardResolvesNamesOnce(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	counting := &countingDirectory{Directory: profile.NewStoreDirectory(f.mem)}
	f.agg = NewAggregator(f.att, f.slots, profile.NewCache(counting, nil, nil), time.UTC, nil)
	b := openBoard(t, f, "")
	ctx := context.Background()

	require.NoError(t, f.att.Declare(ctx, "u1", day, attendance.StatusGoing))
	require.NoError(t, f.slots.Join(ctx, "u1", day, morning))
	require.NoError(t, f.slots.Join(ctx, "u1", day, "9:00-11:00"))

	require.Eventually(t, func() bool {
		s := b.Snapshot()
		v, _ := s.Slot("9:00-11:00")
		return len(s.Going) == 1 && s.Going[0].Name == "Ada" && len(v.Members) == 1 && v.Members[0].Name == "Ada"
	}, wait, 5*time.Millisecond)
	assert.Equal(t, int32(1), counting.calls.Load())
}

func TestBoardClose(t *testing.T) {
	f := newFixture(t, PolicyAny)
	b, err := OpenBoard(context.Background(), f.agg, f.actions, day, "u1", nil)
	require.NoError(t, err)
	b.Close()

	assert.ErrorIs(t, b.Join(context.Background(), morning), ErrClosed)
	_, err = b.WaitReady(context.Background())
	if err != nil {
		assert.ErrorIs(t, err, ErrClosed)
	}
}
