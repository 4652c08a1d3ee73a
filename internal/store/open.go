// Package store opens the configured backends: the shared kv store and
// the profile directory.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"courtboard/internal/config"
	"courtboard/internal/kv"
	"courtboard/internal/metrics"
	"courtboard/internal/profile"
)

// Backends are the opened stores. Close releases all of them.
type Backends struct {
	KV       kv.Store
	Profiles profile.Directory

	redis   *redis.Client
	pool    *pgxpool.Pool
	closers []func() error
}

// Open connects the kv backend named by cfg.StoreBackend and the profile
// directory named by cfg.ProfileBackend. Store operations are counted in m.
func Open(ctx context.Context, cfg config.App, m *metrics.Metrics, logger *zap.Logger) (*Backends, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backends{}
	var raw kv.Store
	switch cfg.StoreBackend {
	case "memory", "":
		raw = kv.NewMemory()
	case "redis":
		b.redis = NewRedis(cfg.RedisAddr)
		b.closers = append(b.closers, b.redis.Close)
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		r := kv.NewRedis(b.redis, cfg.RedisPrefix)
		b.closers = append(b.closers, r.Close)
		raw = r
	case "sqlite":
		s, err := kv.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, s.Close)
		raw = s
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	backend := cfg.StoreBackend
	if backend == "" {
		backend = "memory"
	}
	b.KV = kv.Instrument(raw, backend, m)
	logger.Info("store opened", zap.String("backend", backend))

	switch cfg.ProfileBackend {
	case "store", "":
		b.Profiles = profile.NewStoreDirectory(b.KV)
	case "postgres":
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pool = pool
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		if err := profile.Migrate(ctx, pool); err != nil {
			b.Close()
			return nil, err
		}
		b.Profiles = profile.NewPostgresDirectory(pool)
		logger.Info("profile directory on postgres")
	default:
		b.Close()
		return nil, fmt.Errorf("unknown profile backend %q", cfg.ProfileBackend)
	}
	return b, nil
}

// Healthy pings every network backend in use.
func (b *Backends) Healthy(ctx context.Context) error {
	var errs []error
	if b.redis != nil && !Healthy(ctx, b.redis) {
		errs = append(errs, errors.New("redis unreachable"))
	}
	if b.pool != nil {
		if err := b.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases backends in reverse order of opening.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}
