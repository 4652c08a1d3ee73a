package kv

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// errOffline is what a Memory store reports while taken offline.
var errOffline = errors.New("memory store offline")

// Memory is an in-process Store. It backs tests and single-process runs.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]map[string]json.RawMessage
	feed    *MemoryFeed
	offline bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string]json.RawMessage),
		feed: NewMemoryFeed(),
	}
}

// SetOffline makes every operation fail with ErrUnavailable until called
// again with false.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, path string) (json.RawMessage, bool, error) {
	parent, child, err := split(path)
	if err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.offline {
		return nil, false, unavailable("get "+path, errOffline)
	}
	v, ok := m.data[parent][child]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

// Children implements Store.
func (m *Memory) Children(_ context.Context, path string) ([]Child, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.offline {
		return nil, unavailable("children "+path, errOffline)
	}
	out := make([]Child, 0, len(m.data[path]))
	for k, v := range m.data[path] {
		out = append(out, Child{Key: k, Value: clone(v)})
	}
	sortChildren(out)
	return out, nil
}

// Query implements Store.
func (m *Memory) Query(ctx context.Context, path, field, equals string) ([]Child, error) {
	all, err := m.Children(ctx, path)
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
func (m *Memory) Set(ctx context.Context, path string, value any) error {
	parent, child, err := split(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return unavailable("set "+path, errOffline)
	}
	bucket, ok := m.data[parent]
	if !ok {
		bucket = make(map[string]json.RawMessage)
		m.data[parent] = bucket
	}
	bucket[child] = raw
	m.mu.Unlock()
	return m.feed.Publish(ctx, Change{Path: path})
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, path string) error {
	parent, child, err := split(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return unavailable("delete "+path, errOffline)
	}
	bucket := m.data[parent]
	delete(bucket, child)
	if len(bucket) == 0 {
		delete(m.data, parent)
	}
	m.mu.Unlock()
	return m.feed.Publish(ctx, Change{Path: path})
}

// Subscribe implements Store.
func (m *Memory) Subscribe(ctx context.Context, path string, fn func(Change)) (Subscription, error) {
	return m.feed.Subscribe(ctx, path, fn)
}

func clone(v json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
