package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtboard/internal/calendar"
	"courtboard/internal/identity"
	"courtboard/internal/kv"
)

const day = calendar.Day("2024-07-15")

func newService(t *testing.T) (*Service, *kv.Memory) {
	t.Helper()
	store := kv.NewMemory()
	return NewService(NewRepository(store, nil, nil), nil, nil), store
}

func TestDeclareGoing(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Declare(ctx, "u1", day, StatusGoing))

	recs := svc.RosterForDay(ctx, day)
	require.Len(t, recs, 1)
	assert.Equal(t, Record{ID: "u1_2024-07-15", UserID: "u1", Day: day, Status: StatusGoing}, recs[0])
}

func TestDeclareIsUpsert(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Declare(ctx, "u1", day, StatusGoing))
	require.NoError(t, svc.Declare(ctx, "u1", day, StatusGoing))
	assert.Len(t, svc.RosterForDay(ctx, day), 1)

	require.NoError(t, svc.Declare(ctx, "u1", day, StatusMaybe))
	require.NoError(t, svc.Declare(ctx, "u2", day, StatusGoing))
	recs := svc.RosterForDay(ctx, day)
	require.Len(t, recs, 2)
	assert.Equal(t, StatusMaybe, recs[0].Status)
	assert.Equal(t, "u2", recs[1].UserID)
	assert.Equal(t, StatusMaybe, svc.Status(ctx, "u1", day))
}

func TestDeclareNotDecidedIsNotPersisted(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Declare(ctx, "u1", day, StatusNotDecided))
	children, err := store.Children(ctx, Collection)
	require.NoError(t, err)
	assert.Empty(t, children)
	assert.Equal(t, StatusNotDecided, svc.Status(ctx, "u1", day))
}

func TestDeclareValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Declare(ctx, "", day, StatusGoing), identity.ErrNotAuthenticated)
	assert.ErrorIs(t, svc.Declare(ctx, "u1", day, Status("attending")), ErrInvalidStatus)
}

func TestDeclareStoreUnavailable(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Declare(ctx, "u1", day, StatusGoing))

	store.SetOffline(true)
	err := svc.Declare(ctx, "u1", day, StatusMaybe)
	assert.ErrorIs(t, err, kv.ErrUnavailable)
	assert.Empty(t, svc.RosterForDay(ctx, day))

	store.SetOffline(false)
	assert.Equal(t, StatusGoing, svc.Status(ctx, "u1", day))
}

func TestRosterSkipsMalformed(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Declare(ctx, "u1", day, StatusGoing))
	require.NoError(t, store.Set(ctx, "attendances/u2_2024-07-15", map[string]string{"userId": "u2", "day": "2024-07-15"}))
	require.NoError(t, store.Set(ctx, "attendances/u3_2024-07-15", map[string]string{"userId": "u3", "day": "2024-07-15", "status": "sometimes"}))
	require.NoError(t, store.Set(ctx, "attendances/u4_2024-07-15", map[string]string{"day": "2024-07-15", "status": "going"}))
	require.NoError(t, store.Set(ctx, "attendances/u5_2024-07-15", map[string]any{"userId": "u5", "day": "2024-07-15", "status": 1}))

	recs := svc.RosterForDay(ctx, day)
	require.Len(t, recs, 1)
	assert.Equal(t, "u1", recs[0].UserID)
	assert.Equal(t, StatusNotDecided, svc.Status(ctx, "u2", day))
}

func TestWithdraw(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Declare(ctx, "u1", day, StatusGoing))
	require.NoError(t, svc.Withdraw(ctx, "u1", day))
	assert.Empty(t, svc.RosterForDay(ctx, day))
	require.NoError(t, svc.Withdraw(ctx, "u1", day))
}

func TestWatchDayReplacesSnapshot(t *testing.T) {
	svc, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps := make(chan []Record, 16)
	sub, err := svc.WatchDay(ctx, day, func(recs []Record) { snaps <- recs })
	require.NoError(t, err)
	defer sub.Cancel()

	assert.Empty(t, <-snaps)
	require.NoError(t, svc.Declare(ctx, "u1", day, StatusGoing))
	require.NoError(t, svc.Declare(ctx, "u2", "2024-07-16", StatusGoing))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case recs := <-snaps:
			if len(recs) == 1 {
				assert.Equal(t, "u1", recs[0].UserID)
				return
			}
		case <-deadline:
			t.Fatal("roster never showed u1")
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"going", "maybe", "notDecided"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}
	_, err := ParseStatus("Going")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRecordPointRead(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	_, found := svc.Record(ctx, "u1", day)
	assert.False(t, found)

	require.NoError(t, svc.Declare(ctx, "u1", day, StatusMaybe))
	rec, found := svc.Record(ctx, "u1", day)
	require.True(t, found)
	assert.Equal(t, Record{ID: "u1_2024-07-15", UserID: "u1", Day: day, Status: StatusMaybe}, rec)

	mem.SetOffline(true)
	_, found = svc.Record(ctx, "u1", day)
	assert.False(t, found)
	assert.Equal(t, StatusNotDecided, svc.Status(ctx, "u1", day))
}
