package scheduler

import "time"

// Manual is a deterministic Scheduler driven by Advance. Callbacks due at
// the same instant run in registration order.
type Manual struct {
	now    time.Time
	seq    uint64
	timers map[string]*manualEntry
	posted []func()
}

type manualEntry struct {
	due      time.Time
	seq      uint64
	interval time.Duration
	fn       func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start, timers: make(map[string]*manualEntry)}
}

func (m *Manual) Now() time.Time {
	return m.now
}

func (m *Manual) SetTimeout(name string, d time.Duration, fn func()) {
	m.seq++
	m.timers[name] = &manualEntry{due: m.now.Add(d), seq: m.seq, fn: fn}
}

func (m *Manual) SetInterval(name string, d time.Duration, fn func()) {
	m.seq++
	m.timers[name] = &manualEntry{due: m.now.Add(d), seq: m.seq, interval: d, fn: fn}
}

func (m *Manual) Cancel(name string) bool {
	if _, ok := m.timers[name]; !ok {
		return false
	}
	delete(m.timers, name)
	return true
}

// Post queues fn to run at the start of the next Advance.
func (m *Manual) Post(fn func()) bool {
	m.posted = append(m.posted, fn)
	return true
}

func (m *Manual) Pending(name string) bool {
	_, ok := m.timers[name]
	return ok
}

// Advance moves the clock forward by d, firing everything that falls due on
// the way, including callbacks registered by earlier callbacks.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		m.drain()
		name, e := m.next(target)
		if e == nil {
			break
		}
		m.now = e.due
		if e.interval > 0 {
			m.seq++
			e.due = e.due.Add(e.interval)
			e.seq = m.seq
		} else {
			delete(m.timers, name)
		}
		e.fn()
	}
	m.now = target
	m.drain()
}

func (m *Manual) drain() {
	for len(m.posted) > 0 {
		fn := m.posted[0]
		m.posted = m.posted[1:]
		fn()
	}
}

func (m *Manual) next(limit time.Time) (string, *manualEntry) {
	var (
		bestName string
		best     *manualEntry
	)
	for name, e := range m.timers {
		if e.due.After(limit) {
			continue
		}
		if best == nil || e.due.Before(best.due) || (e.due.Equal(best.due) && e.seq < best.seq) {
			bestName, best = name, e
		}
	}
	return bestName, best
}
