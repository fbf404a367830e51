package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/battery-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func PutSlot(db *sql.DB, key string, value []byte, at time.Time) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := PutSlotWithTx(tx, key, value, at); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func PutSlotWithTx(tx *sql.Tx, key string, value []byte, at time.Time) error {
	_, err := tx.Exec(`INSERT INTO slots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put slot %s: %w", key, err)
	}
	return nil
}

func DeleteSlotWithTx(tx *sql.Tx, key string) error {
	if _, err := tx.Exec(`DELETE FROM slots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

func InsertEvent(db *sql.DB, kind model.EventKind, value float64, at time.Time) error {
	_, err := db.Exec(`INSERT INTO events (kind, value, at) VALUES (?, ?, ?)`,
		string(kind), value, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert %s event: %w", kind, err)
	}
	return nil
}

// PruneEvents keeps the newest keep events.
func PruneEvents(db *sql.DB, keep int) (int64, error) {
	res, err := db.Exec(`DELETE FROM events WHERE id NOT IN (SELECT id FROM events ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
