package persist

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Backend stores opaque values by key.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// Stores pairs a durable backend for rarely changing values with a
// volatile one for frequently flushed counters. A nil Volatile falls back
// to Durable.
type Stores struct {
	Durable  Backend
	Volatile Backend
}

type Slot[T any] struct {
	key     string
	backend Backend
}

func MakeSlot[T any](stores Stores, key string, durable bool) *Slot[T] {
	backend := stores.Durable
	if !durable && stores.Volatile != nil {
		backend = stores.Volatile
	}
	return &Slot[T]{key: key, backend: backend}
}

func (s *Slot[T]) Key() string {
	return s.key
}

// Load decodes the stored value into v. A missing key, an unreadable
// backend and a corrupt value all report false.
func (s *Slot[T]) Load(v *T) bool {
	if s.backend == nil {
		return false
	}
	raw, ok, err := s.backend.Get(s.key)
	if err != nil {
		log.Warn().Err(err).Str("slot", s.key).Msg("Failed to read persisted value")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Warn().Err(err).Str("slot", s.key).Msg("Discarding unreadable persisted value")
		return false
	}
	return true
}

func (s *Slot[T]) Save(v *T) error {
	if s.backend == nil {
		return fmt.Errorf("slot %s has no backend", s.key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode slot %s: %w", s.key, err)
	}
	if err := s.backend.Put(s.key, raw); err != nil {
		return fmt.Errorf("write slot %s: %w", s.key, err)
	}
	return nil
}
