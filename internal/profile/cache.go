package profile

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"courtboard/internal/metrics"
)

// UnknownName is shown for users whose lookup failed.
const UnknownName = "Unknown"

// Cache memoizes display names for the life of its owner. Each user id is
// looked up at most once; a failed lookup is memoized as UnknownName and
// never retried. Concurrent misses for one id share a single lookup.
type Cache struct {
	dir     Directory
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	names map[string]string
	group singleflight.Group
}

// NewCache returns an empty cache over dir.
func NewCache(dir Directory, logger *zap.Logger, m *metrics.Metrics) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{dir: dir, logger: logger, metrics: m, names: make(map[string]string)}
}

// Peek returns the memoized name without looking it up.
func (c *Cache) Peek(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[userID]
	return name, ok
}

// Name resolves userID, looking it up on first use.
func (c *Cache) Name(ctx context.Context, userID string) string {
	if name, ok := c.Peek(userID); ok {
		return name
	}
	v, _, _ := c.group.Do(userID, func() (any, error) {
		if name, ok := c.Peek(userID); ok {
			return name, nil
		}
		name := UnknownName
		// A caller going away must not memoize its cancellation.
		p, err := c.dir.Lookup(context.WithoutCancel(ctx), userID)
		c.metrics.NameLookup(err)
		if err != nil {
			c.logger.Warn("name lookup failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			name = p.Name
		}
		c.mu.Lock()
		c.names[userID] = name
		c.mu.Unlock()
		return name, nil
	})
	return v.(string)
}

// Remember records name for userID, e.g. after the user saved a profile
// through this process.
func (c *Cache) Remember(userID, name string) {
	c.mu.Lock()
	c.names[userID] = name
	c.mu.Unlock()
}

// Names resolves every id in ids, in order.
func (c *Cache) Names(ctx context.Context, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = c.Name(ctx, id)
	}
	return out
}
