package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrCorrupt marks a file that exists but does not decode.
var ErrCorrupt = errors.New("corrupt store file")

// Store keeps every slot of one JSON document in memory and rewrites the
// file on each Put. It is meant for tmpfs-backed paths that take frequent
// writes.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]json.RawMessage
	loaded bool
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (map[string]json.RawMessage, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := map[string]json.RawMessage{}
	if err := json.NewDecoder(file).Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return values, nil
}

func (s *Store) Save(values map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(values); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, s.path)
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return nil, false, err
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.values[key] = json.RawMessage(value)
	return s.Save(s.values)
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	values, err := s.Load()
	switch {
	case err == nil:
		s.values = values
	case errors.Is(err, fs.ErrNotExist):
		s.values = map[string]json.RawMessage{}
	case errors.Is(err, ErrCorrupt):
		// the next Put rewrites the file from an empty document
		bad := s.path + ".corrupt"
		if rerr := os.Rename(s.path, bad); rerr != nil {
			log.Warn().Err(rerr).Str("path", s.path).Msg("Failed to move corrupt store file aside")
		}
		log.Warn().Err(err).Str("moved_to", bad).Msg("Discarding corrupt store file")
		s.values = map[string]json.RawMessage{}
	default:
		return err
	}
	s.loaded = true
	return nil
}
