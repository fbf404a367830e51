// Package scheduler provides named, replaceable timeouts and intervals that
// fire on a single event loop, plus a manual clock for tests.
package scheduler

import "time"

// Scheduler registers callbacks by name. Registering a name that is already
// pending replaces the earlier registration.
type Scheduler interface {
	SetTimeout(name string, d time.Duration, fn func())
	SetInterval(name string, d time.Duration, fn func())
	Cancel(name string) bool
	Now() time.Time
}

// Timer is a named one-shot that refuses to restart while running and never
// starts with a zero duration.
type Timer struct {
	Name     string
	Duration time.Duration

	sched   Scheduler
	running bool
}

func NewTimer(s Scheduler, name string, d time.Duration) *Timer {
	return &Timer{Name: name, Duration: d, sched: s}
}

// Start arms the timer and reports whether it was armed by this call.
func (t *Timer) Start(onExpire func()) bool {
	if t.running || t.Duration == 0 {
		return false
	}
	t.running = true
	t.sched.SetTimeout(t.Name, t.Duration, func() {
		t.running = false
		onExpire()
	})
	return true
}

// Stop cancels the timer and reports whether it was running.
func (t *Timer) Stop() bool {
	if !t.running {
		return false
	}
	t.running = false
	t.sched.Cancel(t.Name)
	return true
}

func (t *Timer) Running() bool {
	return t.running
}

type scoped struct {
	Scheduler
	prefix string
}

// Scope returns a view of s that registers every name as "owner/name".
// Owners sharing one loop each hold their own view.
func Scope(s Scheduler, owner string) Scheduler {
	return scoped{Scheduler: s, prefix: owner + "/"}
}

func (s scoped) SetTimeout(name string, d time.Duration, fn func()) {
	s.Scheduler.SetTimeout(s.prefix+name, d, fn)
}

func (s scoped) SetInterval(name string, d time.Duration, fn func()) {
	s.Scheduler.SetInterval(s.prefix+name, d, fn)
}

func (s scoped) Cancel(name string) bool {
	return s.Scheduler.Cancel(s.prefix + name)
}
