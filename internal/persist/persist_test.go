package persist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	values map[string][]byte
	err    error
}

func newMem() *memBackend {
	return &memBackend{values: map[string][]byte{}}
}

func (m *memBackend) Get(key string) ([]byte, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memBackend) Put(key string, value []byte) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

type counters struct {
	Charge int64  `json:"charge"`
	In     uint64 `json:"in"`
}

func TestSlot_RoundTrip(t *testing.T) {
	backend := newMem()
	slot := MakeSlot[counters](Stores{Durable: backend}, "meter.counters", false)

	var got counters
	assert.False(t, slot.Load(&got))

	want := counters{Charge: -12, In: 1 << 40}
	require.NoError(t, slot.Save(&want))
	require.True(t, slot.Load(&got))
	assert.Equal(t, want, got)
}

func TestSlot_VolatileSplit(t *testing.T) {
	durable, volatile := newMem(), newMem()
	stores := Stores{Durable: durable, Volatile: volatile}

	v := 5
	require.NoError(t, MakeSlot[int](stores, "counters", false).Save(&v))
	require.NoError(t, MakeSlot[int](stores, "capacity", true).Save(&v))

	assert.Contains(t, volatile.values, "counters")
	assert.NotContains(t, durable.values, "counters")
	assert.Contains(t, durable.values, "capacity")
}

func TestSlot_CorruptValueIsMiss(t *testing.T) {
	backend := newMem()
	backend.values["meter.counters"] = []byte("garbage")
	slot := MakeSlot[counters](Stores{Durable: backend}, "meter.counters", false)

	var got counters
	assert.False(t, slot.Load(&got))
}

func TestSlot_BackendErrors(t *testing.T) {
	backend := newMem()
	backend.err = errors.New("disk gone")
	slot := MakeSlot[counters](Stores{Durable: backend}, "meter.counters", true)

	var got counters
	assert.False(t, slot.Load(&got))
	assert.ErrorContains(t, slot.Save(&got), "disk gone")

	assert.Error(t, MakeSlot[int](Stores{}, "nothing", true).Save(new(int)))
}
