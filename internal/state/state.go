package state

import (
	"sync"
	"time"

	"github.com/thatsimonsguy/battery-controller/internal/model"
)

// Board holds the latest snapshots taken on the event loop for readers on
// other goroutines.
type Board struct {
	mu      sync.RWMutex
	charger model.ChargerSnapshot
	meter   model.MeterSnapshot
	updated time.Time
	started time.Time
}

func NewBoard(started time.Time) *Board {
	return &Board{started: started}
}

func (b *Board) Update(charger model.ChargerSnapshot, meter model.MeterSnapshot, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.charger = charger
	b.meter = meter
	b.updated = at
}

func (b *Board) Charger() model.ChargerSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c := b.charger
	c.Timers = append([]string(nil), b.charger.Timers...)
	return c
}

func (b *Board) Meter() model.MeterSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.meter
}

type Health struct {
	Started   time.Time `json:"started"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     bool      `json:"error"`
	Warning   bool      `json:"warning"`
}

func (b *Board) Health() Health {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Health{
		Started:   b.started,
		UpdatedAt: b.updated,
		Error:     b.charger.Status.Error || b.charger.Failed || b.meter.Status.Error,
		Warning:   b.charger.Status.Warning || b.meter.Status.Warning,
	}
}
