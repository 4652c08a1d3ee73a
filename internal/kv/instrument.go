package kv

import (
	"context"
	"encoding/json"
)

// Observer records the outcome of store operations.
type Observer interface {
	ObserveStoreOp(backend, op string, err error)
}

// Instrument wraps s so every operation is reported to obs under backend.
func Instrument(s Store, backend string, obs Observer) Store {
	if obs == nil {
		return s
	}
	return &instrumented{next: s, backend: backend, obs: obs}
}

type instrumented struct {
	next    Store
	backend string
	obs     Observer
}

func (i *instrumented) Get(ctx context.Context, path string) (json.RawMessage, bool, error) {
	v, ok, err := i.next.Get(ctx, path)
	i.obs.ObserveStoreOp(i.backend, "get", err)
	return v, ok, err
}

func (i *instrumented) Children(ctx context.Context, path string) ([]Child, error) {
	out, err := i.next.Children(ctx, path)
	i.obs.ObserveStoreOp(i.backend, "children", err)
	return out, err
}

func (i *instrumented) Query(ctx context.Context, path, field, equals string) ([]Child, error) {
	out, err := i.next.Query(ctx, path, field, equals)
	i.obs.ObserveStoreOp(i.backend, "query", err)
	return out, err
}

func (i *instrumented) Set(ctx context.Context, path string, value any) error {
	err := i.next.Set(ctx, path, value)
	i.obs.ObserveStoreOp(i.backend, "set", err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, path string) error {
	err := i.next.Delete(ctx, path)
	i.obs.ObserveStoreOp(i.backend, "delete", err)
	return err
}

func (i *instrumented) Subscribe(ctx context.Context, path string, fn func(Change)) (Subscription, error) {
	sub, err := i.next.Subscribe(ctx, path, fn)
	i.obs.ObserveStoreOp(i.backend, "subscribe", err)
	return sub, err
}
