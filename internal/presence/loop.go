package presence

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Board operations after the board stopped.
var ErrClosed = errors.New("presence: closed")

// loop runs posted closures one at a time on a single goroutine. State
// touched only from posted closures needs no locking. Closures must not
// block on the loop itself.
type loop struct {
	work chan func()
	done chan struct{}
}

func newLoop() *loop {
	return &loop{work: make(chan func(), 64), done: make(chan struct{})}
}

// run processes work until ctx is done. onTick, if set, runs on every
// value from tick.
func (l *loop) run(ctx context.Context, tick <-chan time.Time, onTick func()) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			onTick()
		case f := <-l.work:
			f()
		}
	}
}

// post queues f. It reports false when the loop has stopped.
func (l *loop) post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.work <- f:
		return true
	case <-l.done:
		return false
	}
}
