package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "counters.json"))

	v, ok, err := s.Get("meter.counters")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestStore_PutSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "counters.json")
	s := New(path)

	require.NoError(t, s.Put("meter.counters", []byte(`{"current_charge_c":1234}`)))
	require.NoError(t, s.Put("other", []byte(`7`)))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	reopened := New(path)
	v, ok, err := reopened.Get("meter.counters")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"current_charge_c":1234}`, string(v))

	v, ok, err = reopened.Get("other")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `7`, string(v))
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := New(path)
	_, ok, err := s.Get("meter.counters")
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put("meter.counters", []byte(`{"current_charge_c":42}`)))
	}

	kept, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(kept))

	v, ok, err := New(path).Get("meter.counters")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"current_charge_c":42}`, string(v))
}

func TestStore_LoadReportsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	require.NoError(t, os.WriteFile(path, []byte("[1, 2"), 0644))

	_, err := New(path).Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}
