package kv

import (
	"context"
	"sync"
)

// Watch keeps fn fed with whole snapshots of path: it subscribes, loads an
// initial snapshot in the background, and reloads and redelivers on every
// change notification. Each delivery replaces the previous snapshot; load
// decides how read failures degrade.
//
// A snapshot whose load started before an already delivered one is
// dropped, so fn never moves backwards. fn calls are serialized.
func Watch[T any](ctx context.Context, s Store, path string, load func(context.Context) T, fn func(T)) (Subscription, error) {
	var (
		mu        sync.Mutex
		started   uint64
		delivered uint64
	)
	refresh := func() {
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		started++
		seq := started
		mu.Unlock()

		v := load(ctx)

		mu.Lock()
		defer mu.Unlock()
		if seq < delivered || ctx.Err() != nil {
			return
		}
		delivered = seq
		fn(v)
	}
	// Subscribe before the first load so a write landing in between is
	// not lost.
	sub, err := s.Subscribe(ctx, path, func(Change) { refresh() })
	if err != nil {
		return nil, err
	}
	go refresh()
	return sub, nil
}
