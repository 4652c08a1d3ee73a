// Package presence derives the read side of the board: who is going, who
// is in which slot, and how many people are at the courts right now. It
// owns no persisted state; everything is recomputed from the attendance
// and time-slot stores.
package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"courtboard/internal/attendance"
	"courtboard/internal/calendar"
	"courtboard/internal/profile"
	"courtboard/internal/timeslot"
)

// Person is a user id with its resolved display name. Name is empty until
// resolved.
type Person struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

// Live is the result of a live count.
type Live struct {
	Day    calendar.Day `json:"day"`
	Slot   string       `json:"slot,omitempty"`
	Active bool         `json:"active"`
	Count  int          `json:"count"`
}

// Aggregator computes rosters and live counts. It owns the name cache, so
// each user id is looked up once per Aggregator.
type Aggregator struct {
	attendance *attendance.Service
	slots      *timeslot.Store
	names      *profile.Cache
	loc        *time.Location
	logger     *zap.Logger
}

// NewAggregator wires an aggregator. A nil loc means UTC.
func NewAggregator(att *attendance.Service, slots *timeslot.Store, names *profile.Cache, loc *time.Location, logger *zap.Logger) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{attendance: att, slots: slots, names: names, loc: loc, logger: logger}
}

// Catalog returns the slot catalog.
func (a *Aggregator) Catalog() *timeslot.Catalog { return a.slots.Catalog() }

// Names returns the name cache.
func (a *Aggregator) Names() *profile.Cache { return a.names }

// Location returns the venue time zone.
func (a *Aggregator) Location() *time.Location { return a.loc }

// Today returns the venue-local day of now.
func (a *Aggregator) Today(now time.Time) calendar.Day {
	return calendar.In(now, a.loc)
}

// SlotForTime maps t, read in the venue time zone, to the active slot.
func (a *Aggregator) SlotForTime(t time.Time) (timeslot.Slot, bool) {
	return a.slots.Catalog().ForTime(t.In(a.loc))
}

// Live counts the members of the slot active at now, on now's day.
func (a *Aggregator) Live(ctx context.Context, now time.Time) Live {
	live := Live{Day: a.Today(now)}
	slot, ok := a.SlotForTime(now)
	if !ok {
		return live
	}
	live.Slot = slot.Name
	live.Active = true
	live.Count = len(a.slots.MembersOfSlot(ctx, live.Day, slot.Name))
	return live
}

// LiveCount is Live reduced to the count: 0 when no slot is active.
func (a *Aggregator) LiveCount(ctx context.Context, now time.Time) int {
	return a.Live(ctx, now).Count
}

// DayRoster returns the people going on day, with names.
func (a *Aggregator) DayRoster(ctx context.Context, day calendar.Day) []Person {
	return a.byStatus(ctx, a.attendance.RosterForDay(ctx, day), attendance.StatusGoing)
}

// MaybeRoster returns the people who answered maybe for day, with names.
func (a *Aggregator) MaybeRoster(ctx context.Context, day calendar.Day) []Person {
	return a.byStatus(ctx, a.attendance.RosterForDay(ctx, day), attendance.StatusMaybe)
}

// SlotRoster returns the members of slot on day, with names.
func (a *Aggregator) SlotRoster(ctx context.Context, day calendar.Day, slot string) []Person {
	return a.resolve(ctx, a.slots.MembersOfSlot(ctx, day, slot))
}

// Estimated sums the slot roster sizes of day. A person in two slots
// counts twice.
func (a *Aggregator) Estimated(ctx context.Context, day calendar.Day) int {
	n := 0
	for _, s := range a.Catalog().Slots() {
		n += len(a.slots.MembersOfSlot(ctx, day, s.Name))
	}
	return n
}

func (a *Aggregator) byStatus(ctx context.Context, recs []attendance.Record, status attendance.Status) []Person {
	filtered := attendance.Filter(recs, status)
	ids := make([]string, len(filtered))
	for i, r := range filtered {
		ids[i] = r.UserID
	}
	return a.resolve(ctx, ids)
}

func (a *Aggregator) resolve(ctx context.Context, ids []string) []Person {
	out := make([]Person, len(ids))
	for i, id := range ids {
		out[i] = Person{UserID: id, Name: a.names.Name(ctx, id)}
	}
	return out
}

// Day reads a complete snapshot of day in one pass, names resolved. viewer
// may be empty. Unlike a Board it does not follow later changes.
func (a *Aggregator) Day(ctx context.Context, day calendar.Day, viewer string) *Snapshot {
	recs := a.attendance.RosterForDay(ctx, day)
	s := &Snapshot{
		Day:    day,
		Viewer: viewer,
		Status: attendance.StatusNotDecided,
		Going:  a.byStatus(ctx, recs, attendance.StatusGoing),
		Maybe:  a.byStatus(ctx, recs, attendance.StatusMaybe),
		Ready:  true,
	}
	for _, r := range recs {
		if viewer != "" && r.UserID == viewer {
			s.Status = r.Status
		}
	}
	for _, slot := range a.Catalog().Slots() {
		ids := a.slots.MembersOfSlot(ctx, day, slot.Name)
		s.Slots = append(s.Slots, SlotView{
			Name:    slot.Name,
			Label:   slot.Label,
			Members: a.resolve(ctx, ids),
			Joined:  viewer != "" && contains(ids, viewer),
		})
		s.Estimated += len(ids)
	}
	return s
}
