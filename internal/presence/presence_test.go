package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtboard/internal/attendance"
	"courtboard/internal/calendar"
	"courtboard/internal/identity"
	"courtboard/internal/kv"
	"courtboard/internal/profile"
	"courtboard/internal/timeslot"
)

const (
	day     = calendar.Day("2024-07-15")
	morning = "7:00-9:00"
)

type fixture struct {
	mem     *kv.Memory
	att     *attendance.Service
	slots   *timeslot.Store
	agg     *Aggregator
	actions *Actions
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	mem := kv.NewMemory()
	dir := profile.NewStoreDirectory(mem)
	ctx := context.Background()
	require.NoError(t, dir.Save(ctx, "u1", profile.Profile{Name: "Ada", Level: 3}))
	require.NoError(t, dir.Save(ctx, "u2", profile.Profile{Name: "Bo", Level: 2}))

	att := attendance.NewService(attendance.NewRepository(mem, nil, nil), nil, nil)
	slots := timeslot.NewStore(mem, timeslot.Default(), nil, nil)
	agg := NewAggregator(att, slots, profile.NewCache(dir, nil, nil), time.UTC, nil)
	return &fixture{mem: mem, att: att, slots: slots, agg: agg, actions: NewActions(att, slots, policy, nil)}
}

func as(userID string) context.Context {
	return identity.WithUser(context.Background(), identity.User{ID: userID})
}

func at(h, m int) time.Time { return time.Date(2024, 7, 15, h, m, 0, 0, time.UTC) }

func TestNoActiveSlot(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	require.NoError(t, f.slots.Join(context.Background(), "u1", day, morning))

	_, ok := f.agg.SlotForTime(at(11, 30))
	assert.False(t, ok)
	assert.Equal(t, 0, f.agg.LiveCount(context.Background(), at(11, 30)))

	live := f.agg.Live(context.Background(), at(11, 30))
	assert.False(t, live.Active)
	assert.Equal(t, day, live.Day)
}

func TestLiveCount(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	ctx := context.Background()
	require.NoError(t, f.slots.Join(ctx, "u1", day, morning))
	require.NoError(t, f.slots.Join(ctx, "u2", day, morning))
	require.NoError(t, f.slots.Join(ctx, "u2", "2024-07-16", morning))

	assert.Equal(t, 2, f.agg.LiveCount(ctx, at(8, 15)))
	assert.Equal(t, 0, f.agg.LiveCount(ctx, at(9, 15)))
}

func TestSlotForTimeUsesVenueZone(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	loc := time.FixedZone("venue", -7*3600)
	agg := NewAggregator(f.att, f.slots, f.agg.names, loc, nil)

	// 15:30 UTC is 8:30 at the venue.
	slot, ok := agg.SlotForTime(at(15, 30))
	require.True(t, ok)
	assert.Equal(t, morning, slot.Name)
	// 03:00 UTC on the 16th is still the 15th at the venue.
	assert.Equal(t, day, agg.Today(time.Date(2024, 7, 16, 3, 0, 0, 0, time.UTC)))
}

func TestRosters(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	ctx := context.Background()
	require.NoError(t, f.att.Declare(ctx, "u1", day, attendance.StatusGoing))
	require.NoError(t, f.att.Declare(ctx, "u2", day, attendance.StatusMaybe))
	require.NoError(t, f.att.Declare(ctx, "u3", day, attendance.StatusGoing))
	require.NoError(t, f.slots.Join(ctx, "u1", day, morning))
	require.NoError(t, f.slots.Join(ctx, "u1", day, "17:00-Dawn"))
	require.NoError(t, f.slots.Join(ctx, "u3", day, "17:00-Dawn"))

	assert.Equal(t, []Person{{"u1", "Ada"}, {"u3", profile.UnknownName}}, f.agg.DayRoster(ctx, day))
	assert.Equal(t, []Person{{"u2", "Bo"}}, f.agg.MaybeRoster(ctx, day))
	assert.Equal(t, []Person{{"u1", "Ada"}}, f.agg.SlotRoster(ctx, day, morning))
	assert.Equal(t, 3, f.agg.Estimated(ctx, day))
}

func TestActionsJoinPolicy(t *testing.T) {
	f := newFixture(t, PolicyGoing)

	assert.ErrorIs(t, f.actions.Join(context.Background(), day, morning), identity.ErrNotAuthenticated)
	assert.ErrorIs(t, f.actions.Join(as("u1"), day, morning), ErrNotEligible)

	require.NoError(t, f.actions.Declare(as("u1"), day, attendance.StatusMaybe))
	assert.ErrorIs(t, f.actions.Join(as("u1"), day, morning), ErrNotEligible)

	require.NoError(t, f.actions.Declare(as("u1"), day, attendance.StatusGoing))
	require.NoError(t, f.actions.Join(as("u1"), day, morning))
	assert.True(t, f.slots.IsJoined(context.Background(), "u1", day, morning))

	require.NoError(t, f.actions.Leave(as("u1"), day, morning))
	assert.False(t, f.slots.IsJoined(context.Background(), "u1", day, morning))
}

func TestActionsAnyPolicy(t *testing.T) {
	f := newFixture(t, PolicyAny)
	require.NoError(t, f.actions.Join(as("u1"), day, morning))
	assert.Equal(t, attendance.StatusNotDecided, f.att.Status(context.Background(), "u1", day))
}

func TestActionsWithdraw(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	ctx := context.Background()
	require.NoError(t, f.actions.Declare(as("u1"), day, attendance.StatusGoing))
	require.NoError(t, f.actions.Join(as("u1"), day, morning))
	require.NoError(t, f.actions.Join(as("u1"), day, "13:00-15:00"))

	require.NoError(t, f.actions.Withdraw(as("u1"), day))
	st, err := f.actions.Status(as("u1"), day)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNotDecided, st)
	assert.Empty(t, f.slots.MembersOfSlot(ctx, day, morning))
	assert.Empty(t, f.slots.MembersOfSlot(ctx, day, "13:00-15:00"))
}

func TestActionsRedeclareKeepsSlots(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	ctx := context.Background()
	slots := []string{morning, "13:00-15:00"}

	require.NoError(t, f.actions.Declare(as("u1"), day, attendance.StatusGoing))
	for _, slot := range slots {
		require.NoError(t, f.actions.Join(as("u1"), day, slot))
	}
	for _, st := range []attendance.Status{attendance.StatusMaybe, attendance.StatusGoing} {
		require.NoError(t, f.actions.Declare(as("u1"), day, st))
		assert.Equal(t, st, f.att.Status(ctx, "u1", day))
		for _, slot := range slots {
			assert.Equal(t, []string{"u1"}, f.slots.MembersOfSlot(ctx, day, slot), "%s after %s", slot, st)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyGoing, p)
	p, err = ParsePolicy("any")
	require.NoError(t, err)
	assert.Equal(t, PolicyAny, p)
	_, err = ParsePolicy("maybe")
	assert.Error(t, err)

	assert.True(t, PolicyGoing.Allows(attendance.StatusGoing))
	assert.False(t, PolicyGoing.Allows(attendance.StatusMaybe))
	assert.True(t, PolicyAny.Allows(attendance.StatusNotDecided))
}

func TestDaySnapshot(t *testing.T) {
	f := newFixture(t, PolicyGoing)
	ctx := context.Background()
	require.NoError(t, f.actions.Declare(as("u1"), day, attendance.StatusGoing))
	require.NoError(t, f.actions.Declare(as("u2"), day, attendance.StatusMaybe))
	require.NoError(t, f.actions.Join(as("u1"), day, morning))

	s := f.agg.Day(ctx, day, "u1")
	assert.True(t, s.Ready)
	assert.Equal(t, attendance.StatusGoing, s.Status)
	assert.Equal(t, []Person{{"u1", "Ada"}}, s.Going)
	assert.Equal(t, []Person{{"u2", "Bo"}}, s.Maybe)
	assert.Equal(t, 1, s.Estimated)
	v, ok := s.Slot(morning)
	require.True(t, ok)
	assert.True(t, v.Joined)

	anon := f.agg.Day(ctx, day, "")
	assert.Equal(t, attendance.StatusNotDecided, anon.Status)
	v, _ = anon.Slot(morning)
	assert.False(t, v.Joined)
}
