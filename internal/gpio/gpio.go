package gpio

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/pinctrl"
	"github.com/thatsimonsguy/battery-controller/internal/sensor"
)

var safeMode bool

func SetSafeMode(enabled bool) {
	safeMode = enabled
}

type Pin struct {
	Number     int
	ActiveHigh bool
}

var Activate = func(pin Pin) error {
	if safeMode {
		return nil
	}
	if pin.ActiveHigh {
		return pinctrl.SetPin(pin.Number, "op", "pn", "dh")
	}
	return pinctrl.SetPin(pin.Number, "op", "pn", "dl")
}

var Deactivate = func(pin Pin) error {
	if safeMode {
		return nil
	}
	if pin.ActiveHigh {
		return pinctrl.SetPin(pin.Number, "op", "pn", "dl")
	}
	return pinctrl.SetPin(pin.Number, "op", "pn", "dh")
}

var CurrentlyActive = func(pin Pin) (bool, error) {
	level, err := pinctrl.ReadLevel(pin.Number)
	if err != nil {
		return false, fmt.Errorf("failed to read pin level for pin %d: %w", pin.Number, err)
	}
	return pin.ActiveHigh == level, nil
}

// Relay enables the charger while the published voltage target is above
// zero. A failed switch is retried on the next publish.
type Relay struct {
	Pin Pin

	known  bool
	active bool
}

func NewRelay(pin Pin) *Relay {
	r := &Relay{Pin: pin}
	if active, err := CurrentlyActive(pin); err == nil {
		r.known, r.active = true, active
		log.Info().Int("pin", pin.Number).Bool("active", active).Msg("Charger relay state at startup")
	} else {
		log.Warn().Err(err).Int("pin", pin.Number).Msg("Could not read charger relay state")
	}
	return r
}

// Output implements sensor.Sink for the voltage target only.
func (r *Relay) Output(m sensor.Metric) sensor.Output {
	if m.ID != sensor.VoltageTarget {
		return nil
	}
	return sensor.OutputFunc(r.Set)
}

func (r *Relay) Set(target float64) {
	want := target > 0
	if r.known && r.active == want {
		return
	}
	apply := Deactivate
	if want {
		apply = Activate
	}
	if err := apply(r.Pin); err != nil {
		log.Error().Err(err).Int("pin", r.Pin.Number).Bool("enable", want).Msg("Failed to switch charger relay")
		r.known = false
		return
	}
	r.known, r.active = true, want
	log.Info().Int("pin", r.Pin.Number).Bool("enabled", want).Float64("target", target).Msg("Charger relay switched")
}

// Release turns the charger off, used at shutdown.
func (r *Relay) Release() {
	if err := Deactivate(r.Pin); err != nil {
		log.Error().Err(err).Int("pin", r.Pin.Number).Msg("Failed to release charger relay")
		return
	}
	r.known, r.active = true, false
}

func (r *Relay) Active() bool {
	return r.known && r.active
}
