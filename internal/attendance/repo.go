package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"courtboard/internal/calendar"
	"courtboard/internal/kv"
	"courtboard/internal/metrics"
)

// Collection is the container path holding every attendance record.
const Collection = "attendances"

// ErrMalformedRecord marks a stored value that does not parse as a record.
// Such values are skipped, never surfaced.
var ErrMalformedRecord = errors.New("attendance: malformed record")

// wireRecord is the stored shape at attendances/{userId}_{day}.
type wireRecord struct {
	UserID string `json:"userId"`
	Day    string `json:"day"`
	Status string `json:"status"`
}

// Key returns the storage key of the record for (userID, day).
func Key(userID string, day calendar.Day) string {
	return userID + "_" + string(day)
}

// Repository persists attendance records in the shared store.
type Repository struct {
	store   kv.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRepository creates a repo. logger and m may be nil.
func NewRepository(store kv.Store, logger *zap.Logger, m *metrics.Metrics) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: store, logger: logger, metrics: m}
}

func (r *Repository) path(userID string, day calendar.Day) (string, error) {
	return kv.Join(Collection, Key(userID, day))
}

// Put upserts rec at its composite key.
func (r *Repository) Put(ctx context.Context, rec Record) error {
	p, err := r.path(rec.UserID, rec.Day)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, p, wireRecord{
		UserID: rec.UserID,
		Day:    string(rec.Day),
		Status: string(rec.Status),
	})
}

// Get returns the record for (userID, day). A malformed stored value reads
// as absent.
func (r *Repository) Get(ctx context.Context, userID string, day calendar.Day) (Record, bool, error) {
	p, err := r.path(userID, day)
	if err != nil {
		return Record{}, false, err
	}
	raw, found, err := r.store.Get(ctx, p)
	if err != nil || !found {
		return Record{}, false, err
	}
	rec, err := decode(Key(userID, day), raw)
	if err != nil {
		r.skip(Key(userID, day), err)
		return Record{}, false, nil
	}
	return rec, true, nil
}

// ForDay returns every well-formed record for day, ordered by key.
func (r *Repository) ForDay(ctx context.Context, day calendar.Day) ([]Record, error) {
	children, err := r.store.Query(ctx, Collection, "day", string(day))
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(children))
	for _, c := range children {
		rec, err := decode(c.Key, c.Value)
		if err != nil {
			r.skip(c.Key, err)
			continue
		}
		if rec.Day != day {
			r.skip(c.Key, fmt.Errorf("%w: day %q outside query", ErrMalformedRecord, rec.Day))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes the record for (userID, day). Missing records are fine.
func (r *Repository) Delete(ctx context.Context, userID string, day calendar.Day) error {
	p, err := r.path(userID, day)
	if err != nil {
		return err
	}
	return r.store.Delete(ctx, p)
}

// Watch subscribes to the attendance collection.
func (r *Repository) Watch(ctx context.Context, load func(context.Context) []Record, fn func([]Record)) (kv.Subscription, error) {
	return kv.Watch(ctx, r.store, Collection, load, fn)
}

func (r *Repository) skip(key string, err error) {
	r.metrics.Malformed("attendance")
	r.logger.Warn("skipping malformed attendance record", zap.String("key", key), zap.Error(err))
}

func decode(key string, raw json.RawMessage) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if w.UserID == "" {
		return Record{}, fmt.Errorf("%w: missing userId", ErrMalformedRecord)
	}
	day, err := calendar.Parse(w.Day)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if w.Status == "" {
		return Record{}, fmt.Errorf("%w: missing status", ErrMalformedRecord)
	}
	status, err := ParseStatus(w.Status)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return Record{ID: key, UserID: w.UserID, Day: day, Status: status}, nil
}
