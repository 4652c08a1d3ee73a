package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Feed carries change notifications between writers and subscribers.
type Feed interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(ctx context.Context, path string, fn func(Change)) (Subscription, error)
}

// dispatcher serializes calls to a subscriber and coalesces notifications
// that arrive while one is still pending.
type dispatcher struct {
	fn      func(Change)
	pending chan Change
	done    chan struct{}
	once    sync.Once
}

func newDispatcher(ctx context.Context, fn func(Change)) *dispatcher {
	d := &dispatcher{
		fn:      fn,
		pending: make(chan Change, 1),
		done:    make(chan struct{}),
	}
	go d.run(ctx)
	return d
}

func (d *dispatcher) run(ctx context.Context) {
	for {
		select {
		case c := <-d.pending:
			d.fn(c)
		case <-d.done:
			return
		case <-ctx.Done():
			d.stop()
			return
		}
	}
}

func (d *dispatcher) notify(c Change) {
	select {
	case d.pending <- c:
	default:
		// A notification is already queued; the subscriber re-reads anyway.
	}
}

func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.done) })
}

// MemoryFeed fans notifications out to in-process subscribers.
type MemoryFeed struct {
	mu   sync.Mutex
	next int
	subs map[int]*memorySub
}

type memorySub struct {
	path string
	d    *dispatcher
	feed *MemoryFeed
	id   int
}

// NewMemoryFeed creates an in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]*memorySub)}
}

// Publish notifies every subscriber whose path covers the change.
func (f *MemoryFeed) Publish(_ context.Context, change Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if covers(s.path, change.Path) {
			s.d.notify(change)
		}
	}
	return nil
}

// Subscribe registers fn for changes at path or below.
func (f *MemoryFeed) Subscribe(ctx context.Context, path string, fn func(Change)) (Subscription, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	s := &memorySub{path: path, d: newDispatcher(ctx, fn), feed: f, id: f.next}
	f.subs[s.id] = s
	go func() {
		<-s.d.done
		f.mu.Lock()
		delete(f.subs, s.id)
		f.mu.Unlock()
	}()
	return s, nil
}

func (s *memorySub) Cancel() { s.d.stop() }

// RedisFeed publishes changed paths on a Redis pub/sub channel so
// processes sharing one Redis see each other's writes. All subscribers of
// one feed share a single pub/sub connection; messages are fanned out
// through a MemoryFeed.
type RedisFeed struct {
	client  *redis.Client
	channel string
	local   *MemoryFeed

	mu     sync.Mutex
	ps     *redis.PubSub
	closed bool
}

// NewRedisFeed builds a feed on channel. An empty channel uses
// "courtboard:changes".
func NewRedisFeed(client *redis.Client, channel string) *RedisFeed {
	if channel == "" {
		channel = "courtboard:changes"
	}
	return &RedisFeed{client: client, channel: channel, local: NewMemoryFeed()}
}

// Publish announces a changed path.
func (f *RedisFeed) Publish(ctx context.Context, change Change) error {
	if err := f.client.Publish(ctx, f.channel, change.Path).Err(); err != nil {
		return unavailable("publish", err)
	}
	return nil
}

// Subscribe registers fn for changes at path or below, connecting the
// shared pub/sub on first use.
func (f *RedisFeed) Subscribe(ctx context.Context, path string, fn func(Change)) (Subscription, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	if err := f.listen(ctx); err != nil {
		return nil, err
	}
	return f.local.Subscribe(ctx, path, fn)
}

func (f *RedisFeed) listen(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return unavailable("subscribe", errors.New("feed closed"))
	}
	if f.ps != nil {
		return nil
	}
	// The connection outlives the first subscriber's ctx; Close ends it.
	ps := f.client.Subscribe(context.WithoutCancel(ctx), f.channel)
	// Wait for the confirmation so no write after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return unavailable(fmt.Sprintf("subscribe %s", f.channel), err)
	}
	f.ps = ps
	go f.forward(ps.Channel())
	return nil
}

func (f *RedisFeed) forward(msgs <-chan *redis.Message) {
	for msg := range msgs {
		_ = f.local.Publish(context.Background(), Change{Path: msg.Payload})
	}
}

// Close drops the shared pub/sub connection. Existing subscriptions stop
// receiving notifications.
func (f *RedisFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.ps == nil {
		return nil
	}
	err := f.ps.Close()
	f.ps = nil
	return err
}
