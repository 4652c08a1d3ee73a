// Package kv is the shared store client: a path-addressed tree of JSON
// values with point reads, writes, deletes, field-equality queries over a
// container's children, and change subscriptions.
//
// Values live one level below a container path: "attendances/u1_2024-07-15"
// is child "u1_2024-07-15" of container "attendances". Every layout the
// presence engine uses fits that shape.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnavailable marks failures of the backing store (network, disk).
	ErrUnavailable = errors.New("kv: store unavailable")
	// ErrInvalidPath is returned for malformed paths.
	ErrInvalidPath = errors.New("kv: invalid path")
)

// Child is one entry under a container path.
type Child struct {
	Key   string
	Value json.RawMessage
}

// Change identifies a path that was written or deleted.
type Change struct {
	Path string
}

// Subscription is a cancellable change subscription.
type Subscription interface {
	Cancel()
}

// Store is implemented by every backend.
type Store interface {
	// Get reads the value at path. found is false when nothing is stored.
	Get(ctx context.Context, path string) (value json.RawMessage, found bool, err error)
	// Children lists the direct children of a container path, sorted by key.
	Children(ctx context.Context, path string) ([]Child, error)
	// Query lists the children of path whose value is a JSON object with a
	// string field equal to equals, sorted by key.
	Query(ctx context.Context, path, field, equals string) ([]Child, error)
	// Set replaces the value at path.
	Set(ctx context.Context, path string, value any) error
	// Delete removes the value at path. Deleting a missing value succeeds.
	Delete(ctx context.Context, path string) error
	// Subscribe calls fn after every write or delete at path or below it.
	// Calls are serialized per subscription and may be coalesced, so fn
	// should re-read whatever it needs. The subscription ends when ctx is
	// done or Cancel is called.
	Subscribe(ctx context.Context, path string, fn func(Change)) (Subscription, error)
}

// Join builds a path from segments. Every segment must be valid.
func Join(segments ...string) (string, error) {
	for _, s := range segments {
		if err := validSegment(s); err != nil {
			return "", err
		}
	}
	return strings.Join(segments, "/"), nil
}

// ValidSegment reports whether s can be used as one path segment.
func ValidSegment(s string) bool { return validSegment(s) == nil }

func validSegment(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.ContainsAny(s, "/.#$[]") {
		return fmt.Errorf("%w: segment %q contains a reserved character", ErrInvalidPath, s)
	}
	return nil
}

// split separates a leaf path into its container and child key.
func split(path string) (parent, child string, err error) {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("%w: %q has no container", ErrInvalidPath, path)
	}
	if err := checkPath(path); err != nil {
		return "", "", err
	}
	return path[:i], path[i+1:], nil
}

func checkPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, s := range strings.Split(path, "/") {
		if err := validSegment(s); err != nil {
			return err
		}
	}
	return nil
}

// covers reports whether a change at changed is visible to a subscriber
// of path.
func covers(path, changed string) bool {
	return changed == path || strings.HasPrefix(changed, path+"/")
}

func encode(value any) (json.RawMessage, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("kv: encode value: %w", err)
	}
	return b, nil
}

// fieldEquals reports whether raw is a JSON object whose field is the
// string want. Used by backends that filter queries client-side.
func fieldEquals(raw json.RawMessage, field, want string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	v, ok := obj[field]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return false
	}
	return s == want
}

func sortChildren(children []Child) {
	sort.Slice(children, func(i, j int) bool { return children[i].Key < children[j].Key })
}

func unavailable(op string, err error) error {
	return fmt.Errorf("kv: %s: %w: %w", op, ErrUnavailable, err)
}
