package chargecontroller

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/config"
	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/scheduler"
	"github.com/thatsimonsguy/battery-controller/internal/sensor"
)

const (
	component = "charger"

	deferredUpdate = "UPDATE_STATUS"
	deferDelay     = 16 * time.Millisecond

	voltageWatchdog = "NO_VOLTAGE_UPDATE"
	watchdogTimeout = 5 * time.Minute
)

var ErrNoFloatVoltage = errors.New("charger requires a float voltage")

type Recorder interface {
	Record(kind model.EventKind, value float64)
}

type Deps struct {
	Scheduler scheduler.Scheduler
	Target    sensor.Output
	Phase     sensor.TextOutput
	Status    sensor.StatusOutput
	Recorder  Recorder
}

// Controller drives the charge phase machine. All methods must be called
// from the scheduler's goroutine.
type Controller struct {
	cfg    config.Charger
	sched  scheduler.Scheduler
	timers timerSet

	target   sensor.Output
	label    sensor.TextOutput
	statusCh sensor.StatusOutput
	recorder Recorder

	phase   model.ChargePhase
	voltage float64
	current *float64
	setV    float64
	status  model.Status
	failed  bool
	updated time.Time
}

func New(cfg config.Charger, deps Deps) (*Controller, error) {
	if cfg.FloatVoltage == nil {
		return nil, ErrNoFloatVoltage
	}
	if deps.Scheduler == nil {
		return nil, errors.New("charger requires a scheduler")
	}
	sched := scheduler.Scope(deps.Scheduler, component)
	return &Controller{
		cfg:      cfg,
		sched:    sched,
		timers:   newTimerSet(sched, cfg),
		target:   deps.Target,
		label:    deps.Phase,
		statusCh: deps.Status,
		recorder: deps.Recorder,
		phase:    model.PhaseInitial,
		voltage:  math.NaN(),
	}, nil
}

// Start clears any warning and arms the missing-voltage watchdog. The first
// evaluation happens on the first sample.
func (c *Controller) Start() {
	c.status.Warning = false
	c.publishStatus()
	c.armWatchdog()

	log.Info().
		Float64("float_voltage", *c.cfg.FloatVoltage).
		Bool("absorption", c.cfg.AbsorptionVoltage != nil).
		Bool("equalization", c.cfg.EqualizationVoltage != nil).
		Msg("Charge controller started")
}

func (c *Controller) OnVoltage(v float64) {
	c.voltage = v
	c.armWatchdog()
	c.update()
}

func (c *Controller) OnCurrent(a float64) {
	c.current = &a
	c.update()
}

func (c *Controller) update() {
	if c.failed {
		return
	}
	c.apply(evaluate(c.phase, Inputs{Voltage: c.voltage, Current: c.current}, c.cfg))
	c.updated = c.sched.Now()

	if extra := unexpectedTimers(c.phase, c.timers.running()); len(extra) > 0 {
		log.Warn().Str("phase", string(c.phase)).Interface("timers", extra).Msg("Timers running outside their phase")
	}
}

func (c *Controller) apply(d Decision) {
	if d.Failed {
		c.failed = true
		c.setError("Unrecognized charge phase " + string(c.phase))
		log.Error().Str("phase", string(c.phase)).Msg("Charge controller failed, unrecognized phase")
		return
	}

	if d.Phase != c.phase {
		log.Error().
			Str("from", string(c.phase)).
			Float64("voltage", c.voltage).
			Str("bound", d.Bound).
			Float64("limit", d.Limit).
			Msg("Battery voltage out of bounds, stopping charge")
		c.enter(d.Phase)
	}

	for _, id := range d.Stop {
		if c.timers[id].Stop() {
			log.Debug().Str("timer", string(id)).Msg("Timer stopped")
		}
	}
	for _, id := range d.Start {
		c.startTimer(id)
	}

	if d.Target != nil {
		c.setV = *d.Target
		if c.target != nil {
			c.target.Publish(c.setV)
		}
	}
	if d.Label != "" && c.label != nil {
		c.label.PublishText(d.Label)
	}
	if d.Phase == model.PhaseBeforeEqualization && c.recorder != nil {
		c.recorder.Record(model.EventEqualizationStart, c.setV)
	}

	switch d.Status {
	case StatusSetError:
		c.setError(d.Message)
	case StatusClearError:
		c.clearError()
	}

	if d.Next != "" {
		next := d.Next
		c.sched.SetTimeout(deferredUpdate, deferDelay, func() {
			c.enter(next)
			c.update()
		})
	}
}

func (c *Controller) startTimer(id TimerID) {
	t := c.timers[id]
	if t.Start(func() { c.onExpire(id) }) {
		log.Debug().Str("timer", string(id)).Dur("duration", t.Duration).Msg("Timer started")
	}
}

func (c *Controller) onExpire(id TimerID) {
	if c.failed {
		return
	}
	log.Info().Str("timer", string(id)).Str("phase", string(c.phase)).Msg("Charge timer expired")
	c.apply(expire(c.phase, id))
}

func (c *Controller) enter(phase model.ChargePhase) {
	if phase == c.phase {
		return
	}
	log.Info().Str("from", string(c.phase)).Str("to", string(phase)).Msg("Charge phase transition")
	c.phase = phase
}

func (c *Controller) armWatchdog() {
	c.sched.SetTimeout(voltageWatchdog, watchdogTimeout, func() {
		if c.failed {
			return
		}
		log.Error().Dur("after", watchdogTimeout).Msg("No voltage update received")
		c.setError("No voltage update for long time, is sensor working?")
		// the last reading is stale and must not satisfy the recovery bounds
		c.voltage = math.NaN()
		c.enter(model.PhaseBeforeError)
		c.update()
	})
}

func (c *Controller) setError(msg string) {
	wasError := c.status.Error
	c.status.Error = true
	if !wasError {
		// keep the first cause
		c.status.Message = msg
	}
	c.publishStatus()
	if !wasError && c.recorder != nil {
		c.recorder.Record(model.EventChargerError, c.voltage)
	}
}

func (c *Controller) clearError() {
	if !c.status.Error {
		return
	}
	c.status.Error = false
	c.status.Message = ""
	c.publishStatus()
	log.Info().Float64("voltage", c.voltage).Msg("Charger recovered from error")
	if c.recorder != nil {
		c.recorder.Record(model.EventChargerRecovered, c.voltage)
	}
}

func (c *Controller) publishStatus() {
	if c.statusCh != nil {
		c.statusCh.PublishStatus(component, c.status)
	}
}

func (c *Controller) Phase() model.ChargePhase {
	return c.phase
}

func (c *Controller) Target() float64 {
	return c.setV
}

func (c *Controller) Status() model.Status {
	return c.status
}

func (c *Controller) Failed() bool {
	return c.failed
}

func (c *Controller) RunningTimers() []TimerID {
	return c.timers.running()
}

func (c *Controller) Snapshot() model.ChargerSnapshot {
	snap := model.ChargerSnapshot{
		Phase:     c.phase,
		Target:    c.setV,
		Status:    c.status,
		Failed:    c.failed,
		UpdatedAt: c.updated,
	}
	if !math.IsNaN(c.voltage) {
		v := c.voltage
		snap.Voltage = &v
	}
	if c.current != nil {
		a := *c.current
		snap.Current = &a
	}
	for _, id := range c.timers.running() {
		snap.Timers = append(snap.Timers, string(id))
	}
	return snap
}
