package presence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"courtboard/internal/attendance"
	"courtboard/internal/calendar"
	"courtboard/internal/identity"
	"courtboard/internal/kv"
	"courtboard/internal/timeslot"
)

// SlotView is one slot as the viewer sees it.
type SlotView struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Members []Person `json:"members"`
	Joined  bool     `json:"joined"`
	// Pending is true while the viewer's own change to this slot has not
	// been confirmed by the store.
	Pending bool `json:"pending"`
}

// Snapshot is an immutable view of one day. Ready turns true once the
// attendance roster and every slot have been read at least once.
type Snapshot struct {
	Day       calendar.Day      `json:"day"`
	Viewer    string            `json:"viewer,omitempty"`
	Status    attendance.Status `json:"status"`
	Going     []Person          `json:"going"`
	Maybe     []Person          `json:"maybe"`
	Slots     []SlotView        `json:"slots"`
	Estimated int               `json:"estimated"`
	Ready     bool              `json:"ready"`
	Version   uint64            `json:"version"`
}

// Slot returns the view of the named slot.
func (s *Snapshot) Slot(name string) (SlotView, bool) {
	for _, v := range s.Slots {
		if v.Name == name {
			return v, true
		}
	}
	return SlotView{}, false
}

// Board is the live read model of one day for one viewer. Store
// notifications, write completions and name resolutions are all applied on
// the board's own loop; readers get immutable snapshots. Interactive clients
// write through the board so their own changes show up immediately.
type Board struct {
	day     calendar.Day
	viewer  string
	agg     *Aggregator
	actions *Actions
	logger  *zap.Logger

	loop     *loop
	cancel   context.CancelFunc
	snap     atomic.Pointer[Snapshot]
	onUpdate func(*Snapshot)
	ready    chan struct{}
	readyOne sync.Once

	// Owned by the loop.
	records   []attendance.Record
	seenDay   bool
	members   map[string][]string
	seenSlots map[string]bool
	overlay   *timeslot.Overlay
	resolving map[string]bool
	version   uint64
}

// OpenBoard starts a board for day. viewer may be empty for a read-only
// board. onUpdate, if set, receives every snapshot on the board's loop; it
// must return quickly and must not call Join or Leave.
func OpenBoard(ctx context.Context, agg *Aggregator, act *Actions, day calendar.Day, viewer string, onUpdate func(*Snapshot)) (*Board, error) {
	ctx, cancel := context.WithCancel(ctx)
	b := &Board{
		day:       day,
		viewer:    viewer,
		agg:       agg,
		actions:   act,
		logger:    agg.logger.With(zap.String("day", string(day))),
		loop:      newLoop(),
		cancel:    cancel,
		onUpdate:  onUpdate,
		ready:     make(chan struct{}),
		members:   make(map[string][]string),
		seenSlots: make(map[string]bool),
		overlay:   timeslot.NewOverlay(),
		resolving: make(map[string]bool),
	}
	b.publish()
	go b.loop.run(ctx, nil, nil)

	var subs []kv.Subscription
	fail := func(err error) (*Board, error) {
		for _, s := range subs {
			s.Cancel()
		}
		cancel()
		return nil, err
	}
	sub, err := agg.attendance.WatchDay(ctx, day, func(recs []attendance.Record) {
		b.loop.post(func() { b.applyRecords(recs) })
	})
	if err != nil {
		return fail(fmt.Errorf("watch attendance: %w", err))
	}
	subs = append(subs, sub)
	for _, s := range agg.Catalog().Slots() {
		name := s.Name
		sub, err := agg.slots.WatchSlot(ctx, day, name, func(m []string) {
			b.loop.post(func() { b.applyMembers(name, m) })
		})
		if err != nil {
			return fail(fmt.Errorf("watch slot %s: %w", name, err))
		}
		subs = append(subs, sub)
	}
	go func() {
		<-ctx.Done()
		for _, s := range subs {
			s.Cancel()
		}
	}()
	return b, nil
}

// Day returns the board's day.
func (b *Board) Day() calendar.Day { return b.day }

// Snapshot returns the latest snapshot.
func (b *Board) Snapshot() *Snapshot { return b.snap.Load() }

// Ready returns a channel closed once the first complete snapshot exists.
func (b *Board) Ready() <-chan struct{} { return b.ready }

// WaitReady blocks until the board is ready and returns that snapshot.
func (b *Board) WaitReady(ctx context.Context) (*Snapshot, error) {
	select {
	case <-b.ready:
		return b.Snapshot(), nil
	case <-b.loop.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the loop and cancels every subscription. In-flight writes
// are not cancelled.
func (b *Board) Close() {
	b.cancel()
	<-b.loop.done
}

// Declare records the viewer's day status.
func (b *Board) Declare(ctx context.Context, status attendance.Status) error {
	return b.actions.Declare(b.as(ctx), b.day, status)
}

// Withdraw removes the viewer's declaration and slot memberships.
func (b *Board) Withdraw(ctx context.Context) error {
	return b.actions.Withdraw(b.as(ctx), b.day)
}

// Join adds the viewer to slot. The change shows in snapshots before the
// store confirms it and is rolled back if the write fails.
func (b *Board) Join(ctx context.Context, slot string) error {
	return b.change(ctx, slot, true)
}

// Leave removes the viewer from slot, optimistically like Join.
func (b *Board) Leave(ctx context.Context, slot string) error {
	return b.change(ctx, slot, false)
}

func (b *Board) as(ctx context.Context) context.Context {
	if b.viewer == "" {
		return ctx
	}
	return identity.WithUser(ctx, identity.User{ID: b.viewer})
}

func (b *Board) change(ctx context.Context, slot string, join bool) error {
	if err := identity.Check(b.viewer); err != nil {
		return err
	}
	if _, err := b.agg.Catalog().Lookup(slot); err != nil {
		return err
	}
	// Eligibility comes from a point read: the board's roster may not have
	// caught up with the viewer's own declaration yet.
	if join && b.actions.policy != PolicyAny {
		if st := b.agg.attendance.Status(ctx, b.viewer, b.day); !b.actions.policy.Allows(st) {
			return fmt.Errorf("%w: status %s on %s", ErrNotEligible, st, b.day)
		}
	}

	res := make(chan uint64, 1)
	if !b.loop.post(func() {
		tok := b.overlay.Set(slot, b.viewer, join)
		b.publish()
		res <- tok
	}) {
		return ErrClosed
	}
	var token uint64
	select {
	case token = <-res:
	case <-b.loop.done:
		return ErrClosed
	}

	var err error
	if join {
		err = b.agg.slots.Join(ctx, b.viewer, b.day, slot)
	} else {
		err = b.agg.slots.Leave(ctx, b.viewer, b.day, slot)
	}
	b.loop.post(func() {
		if err != nil {
			b.overlay.Drop(slot, b.viewer, token)
		} else {
			b.overlay.Ack(slot, b.viewer, token)
			// The store's own snapshot may already agree; then there is
			// nothing left to reconcile.
			if b.seenSlots[slot] && contains(b.members[slot], b.viewer) == join {
				b.overlay.Drop(slot, b.viewer, token)
			}
		}
		b.publish()
	})
	return err
}

func (b *Board) applyRecords(recs []attendance.Record) {
	b.records = recs
	b.seenDay = true
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.UserID)
	}
	b.resolveNames(ids)
	b.publish()
}

func (b *Board) applyMembers(slot string, members []string) {
	b.members[slot] = members
	b.seenSlots[slot] = true
	b.overlay.Reconcile(slot)
	b.resolveNames(members)
	b.publish()
}

// resolveNames starts a lookup for every id not yet cached or in flight;
// each completion republishes.
func (b *Board) resolveNames(ids []string) {
	names := b.agg.names
	for _, id := range ids {
		if b.resolving[id] {
			continue
		}
		if _, ok := names.Peek(id); ok {
			continue
		}
		b.resolving[id] = true
		go func(id string) {
			names.Name(context.Background(), id)
			b.loop.post(func() {
				delete(b.resolving, id)
				b.publish()
			})
		}(id)
	}
}

func (b *Board) viewerStatus() attendance.Status {
	for _, r := range b.records {
		if r.UserID == b.viewer {
			return r.Status
		}
	}
	return attendance.StatusNotDecided
}

func (b *Board) person(id string) Person {
	name, _ := b.agg.names.Peek(id)
	return Person{UserID: id, Name: name}
}

// publish builds and stores a new snapshot from loop-owned state.
func (b *Board) publish() {
	b.version++
	s := &Snapshot{
		Day:     b.day,
		Viewer:  b.viewer,
		Status:  attendance.StatusNotDecided,
		Going:   []Person{},
		Maybe:   []Person{},
		Version: b.version,
	}
	if b.viewer != "" {
		s.Status = b.viewerStatus()
	}
	for _, r := range b.records {
		switch r.Status {
		case attendance.StatusGoing:
			s.Going = append(s.Going, b.person(r.UserID))
		case attendance.StatusMaybe:
			s.Maybe = append(s.Maybe, b.person(r.UserID))
		}
	}
	ready := b.seenDay
	for _, slot := range b.agg.Catalog().Slots() {
		ids := b.overlay.Apply(slot.Name, b.members[slot.Name])
		view := SlotView{Name: slot.Name, Label: slot.Label, Members: make([]Person, len(ids))}
		for i, id := range ids {
			view.Members[i] = b.person(id)
		}
		if b.viewer != "" {
			view.Joined = contains(ids, b.viewer)
			_, view.Pending = b.overlay.Pending(slot.Name, b.viewer)
		}
		s.Estimated += len(ids)
		s.Slots = append(s.Slots, view)
		ready = ready && b.seenSlots[slot.Name]
	}
	s.Ready = ready
	b.snap.Store(s)
	if ready {
		b.readyOne.Do(func() { close(b.ready) })
	}
	if b.onUpdate != nil {
		b.onUpdate(s)
	}
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
