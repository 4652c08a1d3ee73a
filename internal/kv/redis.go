package kv

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis stores each container as a Redis hash whose fields are the
// container's children. Writes and their change notification go out in one
// MULTI/EXEC so subscribers never miss a write that was applied.
type Redis struct {
	client *redis.Client
	prefix string
	feed   *RedisFeed
}

// NewRedis wraps client. Keys are namespaced with prefix ("courtboard:"
// when empty).
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "courtboard:"
	}
	return &Redis{
		client: client,
		prefix: prefix,
		feed:   NewRedisFeed(client, prefix+"changes"),
	}
}

// Close releases the change feed's pub/sub connection. The client is left
// open for its owner to close.
func (r *Redis) Close() error { return r.feed.Close() }

func (r *Redis) key(container string) string { return r.prefix + container }

// Get implements Store.
func (r *Redis) Get(ctx context.Context, path string) (json.RawMessage, bool, error) {
	parent, child, err := split(path)
	if err != nil {
		return nil, false, err
	}
	v, err := r.client.HGet(ctx, r.key(parent), child).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get "+path, err)
	}
	return json.RawMessage(v), true, nil
}

// Children implements Store.
func (r *Redis) Children(ctx context.Context, path string) ([]Child, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	all, err := r.client.HGetAll(ctx, r.key(path)).Result()
	if err != nil {
		return nil, unavailable("children "+path, err)
	}
	out := make([]Child, 0, len(all))
	for k, v := range all {
		out = append(out, Child{Key: k, Value: json.RawMessage(v)})
	}
	sortChildren(out)
	return out, nil
}

// Query implements Store. Redis has no secondary index here, so the
// filter runs client-side over the container's children.
func (r *Redis) Query(ctx context.Context, path, field, equals string) ([]Child, error) {
	all, err := r.Children(ctx, path)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if fieldEquals(c.Value, field, equals) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, path string, value any) error {
	parent, child, err := split(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.key(parent), child, []byte(raw))
		p.Publish(ctx, r.feed.channel, path)
		return nil
	})
	if err != nil {
		return unavailable("set "+path, err)
	}
	return nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, path string) error {
	parent, child, err := split(path)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, r.key(parent), child)
		p.Publish(ctx, r.feed.channel, path)
		return nil
	})
	if err != nil {
		return unavailable("delete "+path, err)
	}
	return nil
}

// Subscribe implements Store.
func (r *Redis) Subscribe(ctx context.Context, path string, fn func(Change)) (Subscription, error) {
	return r.feed.Subscribe(ctx, path, fn)
}
