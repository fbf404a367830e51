package shutdown

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/env"
)

type hook struct {
	name string
	fn   func()
}

var (
	mu    sync.Mutex
	hooks []hook
	once  sync.Once
)

// exit is replaced in tests.
var exit = os.Exit

// Register adds a step to run at shutdown. Steps run in reverse order of
// registration.
func Register(name string, fn func()) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook{name: name, fn: fn})
}

// Run executes the registered steps once.
func Run() {
	once.Do(func() {
		mu.Lock()
		steps := append([]hook(nil), hooks...)
		mu.Unlock()

		if env.Cfg != nil && env.Cfg.SafeMode {
			log.Info().Msg("Safe mode: relay outputs were never driven")
		}
		for i := len(steps) - 1; i >= 0; i-- {
			log.Info().Str("step", steps[i].name).Msg("Shutdown step")
			steps[i].fn()
		}
	})
}

func Shutdown() {
	Run()
	log.Info().Msg("Battery controller stopped")
	exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Run()
	exit(1)
}
