package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Loop runs every callback on the goroutine that called Run. Timer
// goroutines only enqueue work, so callbacks never race with each other.
type Loop struct {
	events chan func()
	done   chan struct{}

	mu     sync.Mutex
	timers map[string]*loopEntry
	gen    uint64
	closed bool
}

type loopEntry struct {
	gen      uint64
	timer    *time.Timer
	interval time.Duration
	fn       func()
}

func NewLoop(buffer int) *Loop {
	return &Loop{
		events: make(chan func(), buffer),
		done:   make(chan struct{}),
		timers: make(map[string]*loopEntry),
	}
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post queues fn for the loop goroutine. It returns false once the loop has
// stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

func (l *Loop) SetTimeout(name string, d time.Duration, fn func()) {
	l.schedule(name, d, 0, fn)
}

func (l *Loop) SetInterval(name string, d time.Duration, fn func()) {
	l.schedule(name, d, d, fn)
}

func (l *Loop) Cancel(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.timers[name]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(l.timers, name)
	return true
}

func (l *Loop) schedule(name string, d, interval time.Duration, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if old, ok := l.timers[name]; ok {
		old.timer.Stop()
	}

	l.gen++
	e := &loopEntry{gen: l.gen, interval: interval, fn: fn}
	e.timer = l.arm(name, e.gen, d)
	l.timers[name] = e
}

func (l *Loop) arm(name string, gen uint64, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() {
		l.Post(func() { l.fire(name, gen) })
	})
}

// fire runs on the loop goroutine. A stale generation means the entry was
// cancelled or replaced after its timer had already queued the callback.
func (l *Loop) fire(name string, gen uint64) {
	l.mu.Lock()
	e, ok := l.timers[name]
	if !ok || e.gen != gen {
		l.mu.Unlock()
		return
	}
	if e.interval > 0 {
		e.timer = l.arm(name, gen, e.interval)
	} else {
		delete(l.timers, name)
	}
	fn := e.fn
	l.mu.Unlock()

	fn()
}

// Run drains queued callbacks until ctx is cancelled, then stops every
// pending timer.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Msg("Event loop started")
	defer l.stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Event loop stopping")
			return ctx.Err()
		case fn := <-l.events:
			fn()
		}
	}
}

func (l *Loop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	for name, e := range l.timers {
		e.timer.Stop()
		delete(l.timers, name)
	}
	close(l.done)
}
