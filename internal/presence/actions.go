package presence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"courtboard/internal/attendance"
	"courtboard/internal/calendar"
	"courtboard/internal/identity"
	"courtboard/internal/timeslot"
)

// ErrNotEligible is returned when the policy forbids the user from joining
// a slot with their current day status.
var ErrNotEligible = errors.New("presence: not eligible to join")

// Policy decides which day statuses may join slots.
type Policy string

const (
	// PolicyGoing lets only users who declared going join slots.
	PolicyGoing Policy = "going"
	// PolicyAny leaves slot membership independent of day status.
	PolicyAny Policy = "any"
)

// ParsePolicy validates s. An empty s is PolicyGoing.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyGoing, nil
	case PolicyGoing, PolicyAny:
		return p, nil
	}
	return "", fmt.Errorf("presence: unknown slot policy %q", s)
}

// Allows reports whether a user with status may join a slot.
func (p Policy) Allows(status attendance.Status) bool {
	if p == PolicyAny {
		return true
	}
	return status == attendance.StatusGoing
}

// Actions are the writes a signed-in user can make. The acting user is
// taken from the context.
type Actions struct {
	attendance *attendance.Service
	slots      *timeslot.Store
	policy     Policy
	logger     *zap.Logger
}

// NewActions wires the write side.
func NewActions(att *attendance.Service, slots *timeslot.Store, policy Policy, logger *zap.Logger) *Actions {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = PolicyGoing
	}
	return &Actions{attendance: att, slots: slots, policy: policy, logger: logger}
}

// Policy returns the slot policy in force.
func (a *Actions) Policy() Policy { return a.policy }

// Declare records the user's status for day.
func (a *Actions) Declare(ctx context.Context, day calendar.Day, status attendance.Status) error {
	uid, err := identity.UserID(ctx)
	if err != nil {
		return err
	}
	return a.attendance.Declare(ctx, uid, day, status)
}

// Status returns the user's status for day.
func (a *Actions) Status(ctx context.Context, day calendar.Day) (attendance.Status, error) {
	uid, err := identity.UserID(ctx)
	if err != nil {
		return "", err
	}
	return a.attendance.Status(ctx, uid, day), nil
}

// Withdraw removes the user's declaration and every slot membership for
// day. Both are attempted even if one fails.
func (a *Actions) Withdraw(ctx context.Context, day calendar.Day) error {
	uid, err := identity.UserID(ctx)
	if err != nil {
		return err
	}
	return errors.Join(
		a.attendance.Withdraw(ctx, uid, day),
		a.slots.LeaveAll(ctx, uid, day),
	)
}

// Join adds the user to slot on day, subject to the policy.
func (a *Actions) Join(ctx context.Context, day calendar.Day, slot string) error {
	uid, err := identity.UserID(ctx)
	if err != nil {
		return err
	}
	if _, err := a.slots.Catalog().Lookup(slot); err != nil {
		return err
	}
	if a.policy != PolicyAny {
		if st := a.attendance.Status(ctx, uid, day); !a.policy.Allows(st) {
			return fmt.Errorf("%w: status %s on %s", ErrNotEligible, st, day)
		}
	}
	return a.slots.Join(ctx, uid, day, slot)
}

// Leave removes the user from slot on day.
func (a *Actions) Leave(ctx context.Context, day calendar.Day, slot string) error {
	uid, err := identity.UserID(ctx)
	if err != nil {
		return err
	}
	return a.slots.Leave(ctx, uid, day, slot)
}
