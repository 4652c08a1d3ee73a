// Package identity carries the acting user through a request. Who the user
// is gets decided elsewhere (a verified token, a CLI flag); the core only
// asks for the current user id.
package identity

import (
	"context"
	"errors"
)

// ErrNotAuthenticated is returned when a write is attempted without a
// current user.
var ErrNotAuthenticated = errors.New("identity: not authenticated")

// User is the acting user.
type User struct {
	ID   string
	Name string
}

type contextKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the user stored in ctx, if any.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	if !ok || u.ID == "" {
		return User{}, false
	}
	return u, true
}

// UserID returns the current user id or ErrNotAuthenticated.
func UserID(ctx context.Context) (string, error) {
	u, ok := FromContext(ctx)
	if !ok {
		return "", ErrNotAuthenticated
	}
	return u.ID, nil
}

// Check rejects an empty user id.
func Check(userID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	return nil
}
