// Package app wires the presence engine from configuration. Both the HTTP
// server and courtctl start from here.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"courtboard/internal/attendance"
	"courtboard/internal/clock"
	"courtboard/internal/config"
	"courtboard/internal/feedback"
	"courtboard/internal/metrics"
	"courtboard/internal/presence"
	"courtboard/internal/profile"
	"courtboard/internal/store"
	"courtboard/internal/timeslot"
)

// App holds the wired services.
type App struct {
	Config   config.App
	Logger   *zap.Logger
	Clock    clock.Clock
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Backends *store.Backends

	Attendance *attendance.Service
	Slots      *timeslot.Store
	Aggregator *presence.Aggregator
	Actions    *presence.Actions
	Feedback   *feedback.Service
}

// New opens the configured backends and builds every service on top.
func New(ctx context.Context, cfg config.App, logger *zap.Logger, clk clock.Clock) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	catalog := timeslot.Default()
	if cfg.SlotCatalog != "" {
		c, err := timeslot.Load(cfg.SlotCatalog)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	policy, err := presence.ParsePolicy(cfg.SlotPolicy)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backends, err := store.Open(ctx, cfg, m, logger)
	if err != nil {
		return nil, err
	}

	att := attendance.NewService(attendance.NewRepository(backends.KV, logger, m), logger, m)
	slots := timeslot.NewStore(backends.KV, catalog, logger, m)
	names := profile.NewCache(backends.Profiles, logger, m)
	return &App{
		Config:     cfg,
		Logger:     logger,
		Clock:      clk,
		Registry:   reg,
		Metrics:    m,
		Backends:   backends,
		Attendance: att,
		Slots:      slots,
		Aggregator: presence.NewAggregator(att, slots, names, cfg.Location(), logger),
		Actions:    presence.NewActions(att, slots, policy, logger),
		Feedback:   feedback.NewService(backends.KV, clk, logger),
	}, nil
}

// NewLiveMonitor returns a live monitor on the app's clock and metrics.
func (a *App) NewLiveMonitor(onUpdate func(presence.Live)) *presence.LiveMonitor {
	return presence.NewLiveMonitor(a.Aggregator, presence.LiveMonitorConfig{
		Clock:    a.Clock,
		Interval: a.Config.LiveRefresh,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
		OnUpdate: onUpdate,
	})
}

// Close releases the backends.
func (a *App) Close() error {
	return a.Backends.Close()
}
