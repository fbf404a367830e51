package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/battery-controller/internal/model"
)

// GetSlot returns the stored value for key, reporting false when absent.
func GetSlot(db *sql.DB, key string) ([]byte, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM slots WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get slot %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// GetAllSlots lists every stored slot ordered by key.
func GetAllSlots(db *sql.DB) ([]model.SlotRecord, error) {
	rows, err := db.Query(`SELECT key, value, updated_at FROM slots ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var slots []model.SlotRecord
	for rows.Next() {
		var s model.SlotRecord
		var updatedAt string
		if err := rows.Scan(&s.Key, &s.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// GetRecentEvents returns up to limit events, newest first.
func GetRecentEvents(db *sql.DB, limit int) ([]model.Event, error) {
	rows, err := db.Query(`SELECT id, kind, value, at FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var at string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Value, &at); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339, at)
		events = append(events, e)
	}
	return events, rows.Err()
}

func GetLastEvent(db *sql.DB, kind model.EventKind) (*model.Event, error) {
	var e model.Event
	var at string
	err := db.QueryRow(`SELECT id, kind, value, at FROM events WHERE kind = ? ORDER BY id DESC LIMIT 1`, string(kind)).
		Scan(&e.ID, &e.Kind, &e.Value, &at)
	if err != nil {
		return nil, fmt.Errorf("failed to get last %s event: %w", kind, err)
	}
	e.At, _ = time.Parse(time.RFC3339, at)
	return &e, nil
}
