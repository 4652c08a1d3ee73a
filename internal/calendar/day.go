package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the canonical day format used in store keys.
const Layout = "2006-01-02"

// ErrInvalidDay is returned when a day string is not in YYYY-MM-DD form.
var ErrInvalidDay = errors.New("calendar: invalid day")

// Day is a calendar date in canonical YYYY-MM-DD form. It carries no zone;
// all slot math happens on local wall-clock time.
type Day string

// Parse validates s and returns it as a Day.
func Parse(s string) (Day, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	// time.Parse accepts some non-canonical inputs; round-trip to be sure.
	if t.Format(Layout) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return Day(s), nil
}

// Of returns the day t falls on in its own location.
func Of(t time.Time) Day {
	return Day(t.Format(Layout))
}

// In returns the day t falls on in loc. A nil loc uses t's location.
func In(t time.Time, loc *time.Location) Day {
	if loc != nil {
		t = t.In(loc)
	}
	return Of(t)
}

// String implements fmt.Stringer.
func (d Day) String() string { return string(d) }
