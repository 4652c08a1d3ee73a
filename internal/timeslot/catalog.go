package timeslot

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"courtboard/internal/kv"
)

// ErrUnknownSlot is returned for a slot name outside the catalog.
var ErrUnknownSlot = errors.New("timeslot: unknown slot")

// Slot is one named window of the day covering hours [Start, End).
type Slot struct {
	Name  string `yaml:"name" json:"name"`
	Label string `yaml:"label" json:"label"`
	Start int    `yaml:"start" json:"start"`
	End   int    `yaml:"end" json:"end"`
}

// Contains reports whether hour falls inside the slot.
func (s Slot) Contains(hour int) bool {
	return hour >= s.Start && hour < s.End
}

// Catalog is the fixed, ordered list of slots shared by every day. Slots
// never overlap, so every hour maps to at most one slot.
type Catalog struct {
	slots  []Slot
	byName map[string]int
	byHour [24]int // index+1 into slots, 0 = no slot
}

// DefaultSlots is the club's standard session layout.
var DefaultSlots = []Slot{
	{Name: "7:00-9:00", Label: "7-9a", Start: 7, End: 9},
	{Name: "9:00-11:00", Label: "9-11a", Start: 9, End: 11},
	{Name: "13:00-15:00", Label: "1-3p", Start: 13, End: 15},
	{Name: "15:00-17:00", Label: "3-5p", Start: 15, End: 17},
	{Name: "17:00-Dawn", Label: "5p+", Start: 17, End: 24},
}

// Default returns the catalog built from DefaultSlots.
func Default() *Catalog {
	c, err := NewCatalog(DefaultSlots)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog validates slots and builds a catalog preserving their order.
func NewCatalog(slots []Slot) (*Catalog, error) {
	if len(slots) == 0 {
		return nil, errors.New("timeslot: empty catalog")
	}
	c := &Catalog{
		slots:  make([]Slot, len(slots)),
		byName: make(map[string]int, len(slots)),
	}
	copy(c.slots, slots)
	for i, s := range c.slots {
		if !kv.ValidSegment(s.Name) {
			return nil, fmt.Errorf("timeslot: invalid slot name %q", s.Name)
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("timeslot: duplicate slot %q", s.Name)
		}
		if s.Start < 0 || s.End > 24 || s.Start >= s.End {
			return nil, fmt.Errorf("timeslot: slot %q has invalid hours [%d,%d)", s.Name, s.Start, s.End)
		}
		for h := s.Start; h < s.End; h++ {
			if prev := c.byHour[h]; prev != 0 {
				return nil, fmt.Errorf("timeslot: slot %q overlaps %q at hour %d", s.Name, c.slots[prev-1].Name, h)
			}
			c.byHour[h] = i + 1
		}
		if c.slots[i].Label == "" {
			c.slots[i].Label = s.Name
		}
		c.byName[s.Name] = i
	}
	return c, nil
}

type catalogFile struct {
	Slots []Slot `yaml:"slots"`
}

// Load reads a catalog from a YAML file of the form
//
//	slots:
//	  - {name: "7:00-9:00", label: "7-9a", start: 7, end: 9}
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slot catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse slot catalog: %w", err)
	}
	return NewCatalog(f.Slots)
}

// Slots returns the catalog in order.
func (c *Catalog) Slots() []Slot {
	out := make([]Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

// Lookup returns the slot called name.
func (c *Catalog) Lookup(name string) (Slot, error) {
	i, ok := c.byName[name]
	if !ok {
		return Slot{}, fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	return c.slots[i], nil
}

// ForHour returns the slot covering hour (0-23); ok is false when no slot
// does.
func (c *Catalog) ForHour(hour int) (Slot, bool) {
	if hour < 0 || hour > 23 {
		return Slot{}, false
	}
	i := c.byHour[hour]
	if i == 0 {
		return Slot{}, false
	}
	return c.slots[i-1], true
}

// ForTime maps a wall-clock time to its slot using t's own location.
func (c *Catalog) ForTime(t time.Time) (Slot, bool) {
	return c.ForHour(t.Hour())
}
