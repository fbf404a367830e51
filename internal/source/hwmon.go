package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var retryDelay = 50 * time.Millisecond

// Hwmon reads an ina2xx shunt monitor through the Linux hwmon sysfs
// interface: in1_input is bus voltage in mV, curr1_input is current in mA.
type Hwmon struct {
	Path    string
	Retries int
	Invert  bool
}

func (h *Hwmon) Read() (float64, float64, error) {
	mv, err := readMilliWithRetries(filepath.Join(h.Path, "in1_input"), h.Retries)
	if err != nil {
		return 0, 0, err
	}
	ma, err := readMilliWithRetries(filepath.Join(h.Path, "curr1_input"), h.Retries)
	if err != nil {
		return 0, 0, err
	}
	current := float64(ma) / 1000
	if h.Invert {
		current = -current
	}
	return float64(mv) / 1000, current, nil
}

func (h *Hwmon) Close() error {
	return nil
}

func readMilliWithRetries(file string, retries int) (int64, error) {
	v, err := readMilli(file)
	if err != nil && retries > 0 {
		time.Sleep(retryDelay)
		return readMilliWithRetries(file, retries-1)
	}
	return v, err
}

var readMilli = func(file string) (int64, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		log.Debug().Err(err).Str("file", file).Msg("failed to read hwmon value")
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", file, err)
	}
	return v, nil
}
