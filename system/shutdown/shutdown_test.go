package shutdown

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func reset(t *testing.T) *[]int {
	t.Helper()
	hooks = nil
	once = sync.Once{}
	codes := []int{}
	orig := exit
	exit = func(code int) { codes = append(codes, code) }
	t.Cleanup(func() { exit = orig })
	return &codes
}

func TestShutdown_RunsHooksInReverse(t *testing.T) {
	codes := reset(t)
	var order []string
	Register("flush", func() { order = append(order, "flush") })
	Register("relay", func() { order = append(order, "relay") })

	Shutdown()
	assert.Equal(t, []string{"relay", "flush"}, order)
	assert.Equal(t, []int{0}, *codes)

	Shutdown()
	assert.Len(t, order, 2, "hooks run once")
}

func TestShutdownWithError(t *testing.T) {
	codes := reset(t)
	ran := false
	Register("flush", func() { ran = true })

	ShutdownWithError(errors.New("database gone"), "fatal")
	assert.True(t, ran)
	assert.Equal(t, []int{1}, *codes)
}
