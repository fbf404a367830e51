package db

import (
	"database/sql"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/model"
)

// SlotBackend exposes the slots table as a key/value backend.
type SlotBackend struct {
	Conn *sql.DB
	Now  func() time.Time
}

func NewSlotBackend(conn *sql.DB) *SlotBackend {
	return &SlotBackend{Conn: conn, Now: time.Now}
}

func (b *SlotBackend) Get(key string) ([]byte, bool, error) {
	return GetSlot(b.Conn, key)
}

func (b *SlotBackend) Put(key string, value []byte) error {
	return PutSlot(b.Conn, key, value, b.Now())
}

// EventLog appends controller events to the events table.
type EventLog struct {
	Conn *sql.DB
	Now  func() time.Time
}

func NewEventLog(conn *sql.DB) *EventLog {
	return &EventLog{Conn: conn, Now: time.Now}
}

func (l *EventLog) Record(kind model.EventKind, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}
	if err := InsertEvent(l.Conn, kind, value, l.Now()); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to record event")
	}
}
