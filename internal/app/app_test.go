package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtboard/internal/attendance"
	"courtboard/internal/calendar"
	"courtboard/internal/clock"
	"courtboard/internal/config"
	"courtboard/internal/identity"
	"courtboard/internal/presence"
)

func testConfig() config.App {
	return config.App{
		Env:            "test",
		StoreBackend:   "memory",
		ProfileBackend: "store",
		SlotPolicy:     "going",
		VenueTZ:        "America/Los_Angeles",
		JWTIssuer:      "courtboard",
		JWTSigningKey:  "k",
		LiveRefresh:    time.Minute,
	}
}

func TestNewWiresServices(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), nil, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, presence.PolicyGoing, a.Actions.Policy())
	assert.Len(t, a.Aggregator.Catalog().Slots(), 5)
	assert.Equal(t, "America/Los_Angeles", a.Aggregator.Location().String())

	day := calendar.Day("2024-07-15")
	as := identity.WithUser(ctx, identity.User{ID: "u1"})
	require.NoError(t, a.Actions.Declare(as, day, attendance.StatusGoing))
	require.NoError(t, a.Actions.Join(as, day, "7:00-9:00"))
	assert.Equal(t, []string{"u1"}, a.Slots.MembersOfSlot(ctx, day, "7:00-9:00"))

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "courtboard_store_operations_total")
	assert.Contains(t, names, "go_goroutines")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "mongo"
	_, err := New(context.Background(), cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
}

func TestNewLoadsSlotCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
slots:
  - {name: morning, label: am, start: 6, end: 12}
  - {name: evening, label: pm, start: 17, end: 22}
`), 0o600))
	cfg := testConfig()
	cfg.SlotCatalog = path
	cfg.SlotPolicy = "any"

	a, err := New(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer a.Close()

	slots := a.Aggregator.Catalog().Slots()
	require.Len(t, slots, 2)
	assert.Equal(t, "morning", slots[0].Name)
	assert.Equal(t, presence.PolicyAny, a.Actions.Policy())
}

func TestLiveMonitorUsesAppClock(t *testing.T) {
	cfg := testConfig()
	cfg.VenueTZ = "UTC"
	clk := clock.NewFake(time.Date(2024, 7, 15, 14, 0, 0, 0, time.UTC))
	a, err := New(context.Background(), cfg, nil, clk)
	require.NoError(t, err)
	defer a.Close()

	updates := make(chan presence.Live, 4)
	mon := a.NewLiveMonitor(func(l presence.Live) { updates <- l })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	select {
	case l := <-updates:
		assert.Equal(t, presence.Live{Day: "2024-07-15", Slot: "13:00-15:00", Active: true}, l)
	case <-time.After(5 * time.Second):
		t.Fatal("no live update")
	}
}
