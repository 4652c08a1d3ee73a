package timeslot

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"courtboard/internal/calendar"
	"courtboard/internal/identity"
	"courtboard/internal/kv"
	"courtboard/internal/metrics"
)

// Collection is the root path of slot memberships:
// Times/{day}/{slot}/{userId} -> true.
const Collection = "Times"

// Store is the time-slot presence store. Membership is one flag per user,
// so concurrent joins by different users never conflict.
type Store struct {
	store   kv.Store
	catalog *Catalog
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewStore creates a presence store over catalog.
func NewStore(store kv.Store, catalog *Catalog, logger *zap.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{store: store, catalog: catalog, logger: logger, metrics: m}
}

// Catalog returns the slot catalog.
func (s *Store) Catalog() *Catalog { return s.catalog }

// SlotPath returns the container path of a slot's members.
func (s *Store) SlotPath(day calendar.Day, slot string) (string, error) {
	if _, err := s.catalog.Lookup(slot); err != nil {
		return "", err
	}
	return kv.Join(Collection, string(day), slot)
}

func (s *Store) memberPath(userID string, day calendar.Day, slot string) (string, error) {
	if err := identity.Check(userID); err != nil {
		return "", err
	}
	base, err := s.SlotPath(day, slot)
	if err != nil {
		return "", err
	}
	if !kv.ValidSegment(userID) {
		return "", fmt.Errorf("%w: user id %q", kv.ErrInvalidPath, userID)
	}
	return base + "/" + userID, nil
}

// Join marks userID present in slot on day. Joining twice is a no-op.
func (s *Store) Join(ctx context.Context, userID string, day calendar.Day, slot string) error {
	p, err := s.memberPath(userID, day, slot)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, p, true); err != nil {
		return fmt.Errorf("join %s: %w", p, err)
	}
	s.metrics.SlotChanged("join")
	s.logger.Info("slot joined", zap.String("user_id", userID), zap.String("day", string(day)), zap.String("slot", slot))
	return nil
}

// Leave removes userID from slot on day. Leaving a slot never joined is a
// no-op.
func (s *Store) Leave(ctx context.Context, userID string, day calendar.Day, slot string) error {
	p, err := s.memberPath(userID, day, slot)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, p); err != nil {
		return fmt.Errorf("leave %s: %w", p, err)
	}
	s.metrics.SlotChanged("leave")
	s.logger.Info("slot left", zap.String("user_id", userID), zap.String("day", string(day)), zap.String("slot", slot))
	return nil
}

// LeaveAll removes userID from every catalog slot on day. Every slot is
// attempted; the first failure is returned.
func (s *Store) LeaveAll(ctx context.Context, userID string, day calendar.Day) error {
	var first error
	for _, slot := range s.catalog.slots {
		if err := s.Leave(ctx, userID, day, slot.Name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Members reads the members of slot on day. Only an explicit true counts
// as joined.
func (s *Store) Members(ctx context.Context, day calendar.Day, slot string) ([]string, error) {
	p, err := s.SlotPath(day, slot)
	if err != nil {
		return nil, err
	}
	children, err := s.store.Children(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(children))
	for _, c := range children {
		if isTrue(c.Value) {
			out = append(out, c.Key)
		} else {
			s.metrics.Malformed("membership")
		}
	}
	return out, nil
}

// MembersOfSlot is Members with read failures degraded to an empty set.
func (s *Store) MembersOfSlot(ctx context.Context, day calendar.Day, slot string) []string {
	members, err := s.Members(ctx, day, slot)
	if err != nil {
		s.logger.Warn("slot read failed", zap.String("day", string(day)), zap.String("slot", slot), zap.Error(err))
		return nil
	}
	return members
}

// IsJoined reports whether userID is a member of slot on day.
func (s *Store) IsJoined(ctx context.Context, userID string, day calendar.Day, slot string) bool {
	p, err := s.memberPath(userID, day, slot)
	if err != nil {
		return false
	}
	raw, found, err := s.store.Get(ctx, p)
	if err != nil {
		s.logger.Warn("membership read failed", zap.String("path", p), zap.Error(err))
		return false
	}
	return found && isTrue(raw)
}

// WatchSlot keeps fn fed with the whole member set of slot on day.
func (s *Store) WatchSlot(ctx context.Context, day calendar.Day, slot string, fn func([]string)) (kv.Subscription, error) {
	p, err := s.SlotPath(day, slot)
	if err != nil {
		return nil, err
	}
	load := func(ctx context.Context) []string { return s.MembersOfSlot(ctx, day, slot) }
	return kv.Watch(ctx, s.store, p, load, fn)
}

func isTrue(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}
