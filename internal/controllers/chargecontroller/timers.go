package chargecontroller

import (
	"sort"
	"time"

	"github.com/thatsimonsguy/battery-controller/internal/config"
	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/scheduler"
)

type TimerID string

const (
	TimerAbsorption           TimerID = "ABSORPTION_TIMER"
	TimerAbsorptionRestart    TimerID = "ABSORPTION_TIMER_RESTART"
	TimerAbsorptionLowVoltage TimerID = "ABSORPTION_LOW_VOLTAGE"
	TimerEqualization         TimerID = "EQUALIZATION_TIME"
	TimerEqualizationInterval TimerID = "EQUALIZATION_INTERVAL_TIMER"
	TimerEqualizationTimeout  TimerID = "EQUALIZATION_TIMEOUT"
	TimerRecovery             TimerID = "AUTO_RECOVERY"
)

// absorptionTimers are cleared whenever a new absorption or equalization
// period begins.
var absorptionTimers = []TimerID{TimerAbsorptionRestart, TimerAbsorption, TimerAbsorptionLowVoltage}

// chargeTimers are everything cleared on entering the error path. The
// recovery timer is not part of it.
var chargeTimers = []TimerID{
	TimerAbsorptionRestart,
	TimerAbsorption,
	TimerAbsorptionLowVoltage,
	TimerEqualization,
	TimerEqualizationInterval,
	TimerEqualizationTimeout,
}

var allTimers = append(append([]TimerID{}, chargeTimers...), TimerRecovery)

// allowedTimers lists the timers that may be running while the controller
// sits in each phase.
var allowedTimers = map[model.ChargePhase][]TimerID{
	model.PhaseInitial:            {TimerEqualizationInterval},
	model.PhaseBeforeAbsorption:   {TimerAbsorption, TimerEqualizationInterval},
	model.PhaseAbsorption:         {TimerAbsorption, TimerEqualizationInterval},
	model.PhaseBeforeFloat:        {TimerAbsorptionRestart, TimerAbsorptionLowVoltage, TimerEqualizationInterval},
	model.PhaseFloat:              {TimerAbsorptionRestart, TimerAbsorptionLowVoltage, TimerEqualizationInterval},
	model.PhaseBeforeEqualization: {TimerEqualization, TimerEqualizationTimeout, TimerEqualizationInterval},
	model.PhaseEqualization:       {TimerEqualization, TimerEqualizationTimeout, TimerEqualizationInterval},
	model.PhaseBeforeError:        {TimerRecovery},
	model.PhaseError:              {TimerRecovery},
}

// unexpectedTimers returns the running timers that the phase does not allow.
func unexpectedTimers(phase model.ChargePhase, running []TimerID) []TimerID {
	allowed := map[TimerID]bool{}
	for _, id := range allowedTimers[phase] {
		allowed[id] = true
	}
	var out []TimerID
	for _, id := range running {
		if !allowed[id] {
			out = append(out, id)
		}
	}
	return out
}

func timerDurations(cfg config.Charger) map[TimerID]time.Duration {
	return map[TimerID]time.Duration{
		TimerAbsorption:           seconds(cfg.AbsorptionSeconds),
		TimerAbsorptionRestart:    seconds(cfg.AbsorptionRestartSeconds),
		TimerAbsorptionLowVoltage: seconds(deref(cfg.AbsorptionLowVoltageSeconds, 60)),
		TimerEqualization:         seconds(deref(cfg.EqualizationSeconds, 3600)),
		TimerEqualizationInterval: seconds(deref(cfg.EqualizationIntervalSeconds, 604800)),
		TimerEqualizationTimeout:  seconds(deref(cfg.EqualizationTimeoutSeconds, 10800)),
		TimerRecovery:             seconds(cfg.RecoverySeconds),
	}
}

type timerSet map[TimerID]*scheduler.Timer

func newTimerSet(s scheduler.Scheduler, cfg config.Charger) timerSet {
	set := timerSet{}
	for id, d := range timerDurations(cfg) {
		set[id] = scheduler.NewTimer(s, string(id), d)
	}
	return set
}

func (t timerSet) running() []TimerID {
	var out []TimerID
	for _, id := range allTimers {
		if t[id].Running() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func deref(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
