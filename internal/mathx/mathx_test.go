package mathx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampMap_Saturates(t *testing.T) {
	assert.Equal(t, int64(0), ClampMap[int64](11000, 11800, 14200, 0, 360000))
	assert.Equal(t, int64(0), ClampMap[int64](11800, 11800, 14200, 0, 360000))
	assert.Equal(t, int64(360000), ClampMap[int64](14200, 11800, 14200, 0, 360000))
	assert.Equal(t, int64(360000), ClampMap[int64](15000, 11800, 14200, 0, 360000))
}

func TestClampMap_Linear(t *testing.T) {
	assert.Equal(t, int64(180000), ClampMap[int64](13000, 11800, 14200, 0, 360000))
	assert.Equal(t, int64(50), ClampMap[int64](5, 0, 10, 0, 100))
	assert.InDelta(t, 25.0, ClampMap(2.5, 0.0, 10.0, 0.0, 100.0), 1e-9)
}

func TestClampMap_IntegerTruncation(t *testing.T) {
	// 1/3 of the way through a 100 wide output truncates down
	assert.Equal(t, int64(33), ClampMap[int64](1, 0, 3, 0, 100))
}

func TestClampMap_DegenerateRange(t *testing.T) {
	assert.Equal(t, int64(7), ClampMap[int64](5, 10, 10, 7, 100))
	assert.Equal(t, 1.5, ClampMap(20.0, 3.0, 3.0, 1.5, 2.5))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5, 0, 10))
	assert.Equal(t, 10, Clamp(15, 0, 10))
	assert.Equal(t, 4, Clamp(4, 0, 10))
}
