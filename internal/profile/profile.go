// Package profile is the identity directory: display name and skill level
// per user id, with a kv-backed and a Postgres-backed implementation.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"courtboard/internal/identity"
	"courtboard/internal/kv"
)

// Collection is the container path of stored profiles: users/{userId}.
const Collection = "users"

var (
	// ErrNotFound is returned when a user has no profile.
	ErrNotFound = errors.New("profile: not found")
	// ErrInvalid is returned for a profile that fails validation.
	ErrInvalid = errors.New("profile: invalid")
)

// Profile is what onboarding asks for.
type Profile struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Validate checks the name is set and the level is 1 through 5.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if p.Level < 1 || p.Level > 5 {
		return fmt.Errorf("%w: level %d outside 1-5", ErrInvalid, p.Level)
	}
	return nil
}

// Directory resolves and registers profiles.
type Directory interface {
	Lookup(ctx context.Context, userID string) (Profile, error)
	Save(ctx context.Context, userID string, p Profile) error
}

// StoreDirectory keeps profiles in the shared store.
type StoreDirectory struct {
	store kv.Store
}

// NewStoreDirectory returns a directory over store.
func NewStoreDirectory(store kv.Store) *StoreDirectory {
	return &StoreDirectory{store: store}
}

func (d *StoreDirectory) Lookup(ctx context.Context, userID string) (Profile, error) {
	p, err := kv.Join(Collection, userID)
	if err != nil {
		return Profile{}, err
	}
	raw, found, err := d.store.Get(ctx, p)
	if err != nil {
		return Profile{}, err
	}
	if !found {
		return Profile{}, ErrNotFound
	}
	var out Profile
	if err := json.Unmarshal(raw, &out); err != nil {
		return Profile{}, fmt.Errorf("%w: %s: %v", ErrInvalid, userID, err)
	}
	if out.Name == "" {
		return Profile{}, fmt.Errorf("%w: %s has no name", ErrInvalid, userID)
	}
	return out, nil
}

func (d *StoreDirectory) Save(ctx context.Context, userID string, prof Profile) error {
	if err := identity.Check(userID); err != nil {
		return err
	}
	if err := prof.Validate(); err != nil {
		return err
	}
	p, err := kv.Join(Collection, userID)
	if err != nil {
		return err
	}
	if err := d.store.Set(ctx, p, prof); err != nil {
		return fmt.Errorf("save profile %s: %w", userID, err)
	}
	return nil
}
