package attendance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"courtboard/internal/calendar"
	"courtboard/internal/identity"
	"courtboard/internal/kv"
	"courtboard/internal/metrics"
)

// Status is a user's day-level declaration.
type Status string

const (
	StatusGoing      Status = "going"
	StatusMaybe      Status = "maybe"
	StatusNotDecided Status = "notDecided"
)

// ErrInvalidStatus is returned for a status outside the three known values.
var ErrInvalidStatus = errors.New("attendance: invalid status")

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusGoing, StatusMaybe, StatusNotDecided:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Record is one user's declaration for one day. ID is the storage key.
type Record struct {
	ID     string       `json:"id"`
	UserID string       `json:"userId"`
	Day    calendar.Day `json:"day"`
	Status Status       `json:"status"`
}

// Service is the attendance record store: declarations are upserts at a
// deterministic key, so a user never has two records for one day.
type Service struct {
	repo    *Repository
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger, metrics: m}
}

// Declare records status for (userID, day). notDecided is a local-only
// state and is not written. Failures are returned, never retried.
func (s *Service) Declare(ctx context.Context, userID string, day calendar.Day, status Status) error {
	if err := identity.Check(userID); err != nil {
		return err
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	if status == StatusNotDecided {
		return nil
	}
	rec := Record{ID: Key(userID, day), UserID: userID, Day: day, Status: status}
	if err := s.repo.Put(ctx, rec); err != nil {
		return fmt.Errorf("declare %s: %w", rec.ID, err)
	}
	s.metrics.Declared(string(status))
	s.logger.Info("attendance declared",
		zap.String("user_id", userID),
		zap.String("day", string(day)),
		zap.String("status", string(status)))
	return nil
}

// Withdraw deletes the user's record for day.
func (s *Service) Withdraw(ctx context.Context, userID string, day calendar.Day) error {
	if err := identity.Check(userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, day); err != nil {
		return fmt.Errorf("withdraw %s: %w", Key(userID, day), err)
	}
	s.logger.Info("attendance withdrawn", zap.String("user_id", userID), zap.String("day", string(day)))
	return nil
}

// RosterForDay returns the records declared for day. Read failures degrade
// to an empty roster.
func (s *Service) RosterForDay(ctx context.Context, day calendar.Day) []Record {
	recs, err := s.repo.ForDay(ctx, day)
	if err != nil {
		s.logger.Warn("roster read failed", zap.String("day", string(day)), zap.Error(err))
		return nil
	}
	return recs
}

// Record reads the user's declaration for day. Read failures and malformed
// values report as not found.
func (s *Service) Record(ctx context.Context, userID string, day calendar.Day) (Record, bool) {
	rec, found, err := s.repo.Get(ctx, userID, day)
	if err != nil {
		s.logger.Warn("record read failed", zap.String("user_id", userID), zap.String("day", string(day)), zap.Error(err))
		return Record{}, false
	}
	return rec, found
}

// Status returns the user's declared status for day, notDecided when
// nothing (or nothing readable) is stored.
func (s *Service) Status(ctx context.Context, userID string, day calendar.Day) Status {
	rec, found := s.Record(ctx, userID, day)
	if !found {
		return StatusNotDecided
	}
	return rec.Status
}

// WatchDay keeps fn fed with the whole roster for day; every change to the
// attendance collection replaces the previous snapshot.
func (s *Service) WatchDay(ctx context.Context, day calendar.Day, fn func([]Record)) (kv.Subscription, error) {
	load := func(ctx context.Context) []Record { return s.RosterForDay(ctx, day) }
	return s.repo.Watch(ctx, load, fn)
}

// Filter returns the records with status.
func Filter(recs []Record, status Status) []Record {
	var out []Record
	for _, r := range recs {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
