package source

import (
	"fmt"

	"github.com/thatsimonsguy/battery-controller/internal/config"
)

// Open builds the Device named by cfg.Kind.
func Open(cfg config.Source) (Device, error) {
	switch cfg.Kind {
	case "hwmon":
		return &Hwmon{Path: cfg.HwmonPath, Retries: cfg.ReadRetries, Invert: cfg.InvertCurrent}, nil
	case "modbus":
		return NewModbus(cfg)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
