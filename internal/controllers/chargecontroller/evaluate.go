package chargecontroller

import (
	"fmt"
	"math"

	"github.com/thatsimonsguy/battery-controller/internal/config"
	"github.com/thatsimonsguy/battery-controller/internal/model"
)

const (
	labelAbsorption   = "ABSORPTION"
	labelFloat        = "FLOAT"
	labelEqualization = "EQUALIZATION"
	labelError        = "ERROR"
)

type Inputs struct {
	Voltage float64 // NaN until the first sample
	Current *float64
}

type StatusChange int

const (
	StatusUnchanged StatusChange = iota
	StatusSetError
	StatusClearError
)

// Decision is everything one evaluation wants done. Stops are applied
// before starts.
type Decision struct {
	Phase   model.ChargePhase
	Target  *float64
	Label   string
	Start   []TimerID
	Stop    []TimerID
	Status  StatusChange
	Message string
	Next    model.ChargePhase
	Failed  bool

	// Bound and Limit name the configured bound a preempting sample crossed.
	Bound string
	Limit float64
}

func evaluate(phase model.ChargePhase, in Inputs, cfg config.Charger) Decision {
	d := Decision{Phase: phase}

	if phase != model.PhaseError && phase != model.PhaseBeforeError {
		if bound, limit, ok := violation(in.Voltage, cfg); ok {
			d.Phase = model.PhaseBeforeError
			d.Bound, d.Limit = bound, limit
		}
	}

	switch d.Phase {
	case model.PhaseInitial:
		if cfg.AbsorptionVoltage != nil {
			d.Next = model.PhaseBeforeAbsorption
		} else {
			d.Next = model.PhaseBeforeFloat
		}
		if cfg.EqualizationVoltage != nil {
			d.Start = []TimerID{TimerEqualizationInterval}
		}
		// a sample landing between recovery expiry and this phase can re-arm it
		d.Stop = []TimerID{TimerRecovery}

	case model.PhaseBeforeAbsorption:
		d.Target = valueOrZero(cfg.AbsorptionVoltage)
		d.Label = labelAbsorption
		d.Stop = absorptionTimers
		d.Next = model.PhaseAbsorption

	case model.PhaseAbsorption:
		if cfg.AbsorptionVoltage == nil {
			d.Next = model.PhaseBeforeFloat
			break
		}
		switch {
		case in.Voltage < *cfg.AbsorptionVoltage || math.IsNaN(in.Voltage):
			d.Stop = []TimerID{TimerAbsorption}
		case cfg.AbsorptionCurrent != nil && in.Current != nil && *in.Current > *cfg.AbsorptionCurrent:
			// still pulling more than the tail current, hold the timer
			d.Stop = []TimerID{TimerAbsorption}
		default:
			d.Start = []TimerID{TimerAbsorption}
		}

	case model.PhaseBeforeFloat:
		d.Target = valueOrZero(cfg.FloatVoltage)
		d.Label = labelFloat
		if cfg.AbsorptionVoltage != nil {
			d.Start = []TimerID{TimerAbsorptionRestart}
		}
		d.Stop = []TimerID{TimerEqualizationTimeout, TimerEqualization, TimerAbsorption, TimerAbsorptionLowVoltage}
		d.Next = model.PhaseFloat

	case model.PhaseFloat:
		if cfg.AbsorptionVoltage != nil && cfg.AbsorptionRestartVoltage != nil {
			if in.Voltage < *cfg.AbsorptionRestartVoltage {
				d.Start = []TimerID{TimerAbsorptionLowVoltage}
			} else {
				d.Stop = []TimerID{TimerAbsorptionLowVoltage}
			}
		}

	case model.PhaseBeforeEqualization:
		d.Stop = absorptionTimers
		d.Target = valueOrZero(cfg.EqualizationVoltage)
		d.Label = labelEqualization
		d.Start = []TimerID{TimerEqualizationTimeout}
		d.Next = model.PhaseEqualization

	case model.PhaseEqualization:
		if cfg.EqualizationVoltage == nil {
			d.Next = model.PhaseBeforeFloat
			break
		}
		if in.Voltage >= *cfg.EqualizationVoltage {
			d.Start = []TimerID{TimerEqualization}
		} else {
			d.Stop = []TimerID{TimerEqualization}
		}

	case model.PhaseBeforeError:
		d.Stop = chargeTimers
		d.Target = new(float64)
		d.Label = labelError
		d.Status = StatusSetError
		d.Message = "Error state stopping"
		d.Next = model.PhaseError

	case model.PhaseError:
		if cfg.RecoverySeconds != 0 && (cfg.MinVoltage != nil || cfg.MaxVoltage != nil) {
			if withinBounds(in.Voltage, cfg) {
				d.Start = []TimerID{TimerRecovery}
			} else {
				d.Stop = []TimerID{TimerRecovery}
			}
		}

	default:
		d.Failed = true
	}

	if d.Bound != "" {
		d.Message = boundMessage(in.Voltage, d.Bound, d.Limit)
	}
	return d
}

// expire returns the fixed follow-up for a timer that ran to completion.
func expire(phase model.ChargePhase, id TimerID) Decision {
	d := Decision{Phase: phase}
	switch id {
	case TimerAbsorption:
		d.Next = model.PhaseBeforeFloat
	case TimerAbsorptionRestart, TimerAbsorptionLowVoltage:
		d.Next = model.PhaseBeforeAbsorption
	case TimerEqualizationInterval:
		d.Next = model.PhaseBeforeEqualization
	case TimerEqualizationTimeout:
		d.Stop = []TimerID{TimerEqualization}
		d.Start = []TimerID{TimerEqualizationInterval}
		d.Next = model.PhaseBeforeFloat
	case TimerEqualization:
		d.Stop = []TimerID{TimerEqualizationTimeout}
		d.Start = []TimerID{TimerEqualizationInterval}
		d.Next = model.PhaseBeforeFloat
	case TimerRecovery:
		d.Status = StatusClearError
		d.Next = model.PhaseInitial
	}
	return d
}

const (
	boundMax = "max_voltage"
	boundMin = "min_voltage"
)

// violation reports the first configured bound v lies outside of. NaN
// crosses nothing.
func violation(v float64, cfg config.Charger) (bound string, limit float64, ok bool) {
	switch {
	case cfg.MaxVoltage != nil && v > *cfg.MaxVoltage:
		return boundMax, *cfg.MaxVoltage, true
	case cfg.MinVoltage != nil && v < *cfg.MinVoltage:
		return boundMin, *cfg.MinVoltage, true
	}
	return "", 0, false
}

func boundMessage(v float64, bound string, limit float64) string {
	side := "above"
	if bound == boundMin {
		side = "below"
	}
	return fmt.Sprintf("Battery voltage %.2f V %s %s %.2f V", v, side, bound, limit)
}

// withinBounds fails for NaN whenever any bound is configured.
func withinBounds(v float64, cfg config.Charger) bool {
	return (cfg.MinVoltage == nil || v >= *cfg.MinVoltage) && (cfg.MaxVoltage == nil || v <= *cfg.MaxVoltage)
}

func valueOrZero(v *float64) *float64 {
	out := 0.0
	if v != nil {
		out = *v
	}
	return &out
}
