package clock

import (
	"sync"
	"time"
)

// Fake is a Clock whose time only moves when Advance or Set is called.
// Tickers fire during Advance. Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
	changed *sync.Cond
}

type fakeTicker struct {
	ch       chan time.Time
	next     time.Time
	interval time.Duration
	stopped  bool
}

// NewFake returns a fake clock set to start.
func NewFake(start time.Time) *Fake {
	f := &Fake{current: start}
	f.changed = sync.NewCond(&f.mu)
	return f
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// NewTicker registers a ticker that fires every d of fake time.
func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := &fakeTicker{
		ch:       make(chan time.Time, 1),
		next:     f.current.Add(d),
		interval: d,
	}
	f.tickers = append(f.tickers, ft)
	f.changed.Broadcast()
	return &Ticker{
		C: ft.ch,
		stop: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			ft.stopped = true
			f.changed.Broadcast()
		},
	}
}

// Set jumps the clock to t without firing tickers.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	for _, ft := range f.tickers {
		if !ft.stopped {
			ft.next = t.Add(ft.interval)
		}
	}
	f.mu.Unlock()
}

// Advance moves the clock forward by d and fires every ticker whose
// deadline has passed. Sends never block.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
	live := f.tickers[:0]
	for _, ft := range f.tickers {
		if ft.stopped {
			continue
		}
		for !ft.next.After(f.current) {
			select {
			case ft.ch <- ft.next:
			default:
			}
			ft.next = ft.next.Add(ft.interval)
		}
		live = append(live, ft)
	}
	f.tickers = live
	return f.current
}

// WaitForTickers blocks until at least n tickers are active.
func (f *Fake) WaitForTickers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.activeLocked() < n {
		f.changed.Wait()
	}
}

func (f *Fake) activeLocked() int {
	n := 0
	for _, ft := range f.tickers {
		if !ft.stopped {
			n++
		}
	}
	return n
}
