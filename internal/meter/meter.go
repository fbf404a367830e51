package meter

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/config"
	"github.com/thatsimonsguy/battery-controller/internal/mathx"
	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/persist"
	"github.com/thatsimonsguy/battery-controller/internal/scheduler"
	"github.com/thatsimonsguy/battery-controller/internal/sensor"
)

const (
	component = "meter"

	countersKey = "meter.counters"
	capacityKey = "meter.capacity"

	calcInterval = time.Second

	calcName      = "METER_CALC"
	averageName   = "METER_AVERAGE"
	reportName    = "METER_REPORT"
	fullChargeTmr = "FULL_CHARGE_TIMER"
	dischargeTmr  = "FULL_DISCHARGE_TIMER"

	secPerHour = 3600.0
)

// Reading is the integrating source the meter consumes.
type Reading interface {
	Voltage() float64
	Current() float64
	ChargeC() int64
	EnergyJ() int64
	HasVoltage() bool
	Healthy() bool
	ReadsPerSecond() float64
}

type Recorder interface {
	Record(kind model.EventKind, value float64)
}

type Deps struct {
	Scheduler scheduler.Scheduler
	Source    Reading
	Outputs   *sensor.Outputs
	Stores    persist.Stores
	Recorder  Recorder
}

// Meter tracks charge and energy in and out of the battery. All methods
// must be called from the scheduler's goroutine.
type Meter struct {
	cfg      config.Meter
	sched    scheduler.Scheduler
	src      Reading
	outputs  *sensor.Outputs
	status   sensor.StatusOutput
	recorder Recorder

	countersSlot *persist.Slot[Counters]
	capacitySlot *persist.Slot[LearnedCapacity]

	state    model.MeterState
	counters Counters
	learned  LearnedCapacity
	stored   LearnedCapacity
	health   model.Status

	prevChargeC int64
	prevEnergyJ int64

	fullyCharged    bool
	fullyDischarged bool
	fullTimer       *scheduler.Timer
	emptyTimer      *scheduler.Timer

	avg         *MovingAverage
	avgPrimed   bool
	avgPrevJ    int64
	timeToFull  float64
	timeToEmpty float64

	steps  []step
	cursor int
}

func New(cfg config.Meter, deps Deps) (*Meter, error) {
	if deps.Scheduler == nil || deps.Source == nil {
		return nil, errors.New("meter requires a scheduler and a source")
	}
	if cfg.CapacityAh <= 0 || cfg.EnergyFullWh <= 0 {
		return nil, errors.New("meter requires a positive capacity")
	}
	outputs := deps.Outputs
	if outputs == nil {
		outputs = sensor.NewOutputs(nil)
	}

	sched := scheduler.Scope(deps.Scheduler, component)
	m := &Meter{
		cfg:          cfg,
		sched:        sched,
		src:          deps.Source,
		outputs:      outputs,
		status:       outputs.Status(),
		recorder:     deps.Recorder,
		countersSlot: persist.MakeSlot[Counters](deps.Stores, countersKey, false),
		capacitySlot: persist.MakeSlot[LearnedCapacity](deps.Stores, capacityKey, true),
		state:        model.MeterNotInitialized,
		fullTimer:    scheduler.NewTimer(sched, fullChargeTmr, time.Duration(cfg.FullChargeSeconds)*time.Second),
		emptyTimer:   scheduler.NewTimer(sched, dischargeTmr, time.Duration(cfg.DischargeSeconds)*time.Second),
		avg:          NewMovingAverage(cfg.AverageWindow),
		timeToFull:   math.NaN(),
		timeToEmpty:  math.NaN(),
	}
	m.steps = m.reportSteps()
	return m, nil
}

// Start registers the periodic work. Counters are seeded on the first tick
// that has a voltage reading.
func (m *Meter) Start() {
	m.state = model.MeterSetup

	m.sched.SetInterval(calcName, calcInterval, m.tick)
	if m.cfg.AverageIntervalSeconds > 0 {
		m.sched.SetInterval(averageName, time.Duration(m.cfg.AverageIntervalSeconds)*time.Second, m.sampleAverage)
	}
	if period := m.reportPeriod(); period > 0 {
		m.sched.SetInterval(reportName, period, m.report)
	}

	log.Info().
		Float64("capacity_ah", m.cfg.CapacityAh).
		Float64("energy_wh", m.cfg.EnergyFullWh).
		Int("update_interval_seconds", m.cfg.UpdateIntervalSeconds).
		Msg("Meter started")
}

func (m *Meter) reportPeriod() time.Duration {
	if m.cfg.UpdateIntervalSeconds <= 0 || len(m.steps) == 0 {
		return 0
	}
	return time.Duration(m.cfg.UpdateIntervalSeconds) * time.Second / time.Duration(len(m.steps))
}

func (m *Meter) setup() {
	m.prevChargeC = m.src.ChargeC()
	m.prevEnergyJ = m.src.EnergyJ()

	if m.capacitySlot.Load(&m.learned) {
		m.stored = m.learned
		log.Info().Interface("learned", m.learned).Msg("Loaded learned capacity")
	}

	if m.countersSlot.Load(&m.counters) {
		log.Info().Int64("charge_c", m.counters.CurrentChargeC).Msg("Restored meter counters")
	} else {
		mv := int64(m.src.Voltage() * 1000)
		lo := int64(m.cfg.DischargeVoltage * 1000)
		hi := int64(m.cfg.FullChargeVoltage * 1000)
		m.counters.CurrentChargeC = mathx.ClampMap(mv, lo, hi, 0, m.capacityC())
		m.counters.CurrentEnergyJ = mathx.ClampMap(mv, lo, hi, 0, m.capacityJ())
		log.Info().
			Float64("voltage", m.src.Voltage()).
			Int64("charge_c", m.counters.CurrentChargeC).
			Msg("Seeded meter from voltage")
	}

	m.state = model.MeterIdle
}

func (m *Meter) tick() {
	switch m.state {
	case model.MeterNotInitialized:
		return
	case model.MeterSetup:
		if !m.src.HasVoltage() {
			return
		}
		m.setup()
	}

	if !m.src.Healthy() {
		m.setWarning(true)
		return
	}
	m.setWarning(false)

	m.integrate(m.src.ChargeC(), m.src.EnergyJ())
	m.applyHysteresis()
	m.detectFullCharge(m.src.Voltage(), m.src.Current())
	m.detectFullDischarge(m.src.Voltage())
}

func (m *Meter) integrate(chargeC, energyJ int64) {
	dc := chargeC - m.prevChargeC
	de := energyJ - m.prevEnergyJ
	m.prevChargeC, m.prevEnergyJ = chargeC, energyJ

	addSigned(dc, &m.counters.ChargeInC, &m.counters.ChargeOutC)
	addSigned(de, &m.counters.EnergyInJ, &m.counters.EnergyOutJ)

	m.counters.CurrentChargeC = mathx.Clamp(m.counters.CurrentChargeC+dc, 0, m.capacityC())
	m.counters.CurrentEnergyJ = mathx.Clamp(m.counters.CurrentEnergyJ+de, 0, m.capacityJ())
}

func (m *Meter) applyHysteresis() {
	level := m.rawLevel()
	if m.fullyCharged && level < 99 {
		m.fullyCharged = false
	}
	if m.fullyDischarged && level > 1 {
		m.fullyDischarged = false
	}
}

func (m *Meter) detectFullCharge(voltage, current float64) {
	held := voltage >= m.cfg.FullChargeVoltage &&
		(m.cfg.FullChargeCurrent == nil || current <= *m.cfg.FullChargeCurrent)
	if held && !m.fullyCharged {
		arm(m.fullTimer, m.onFullCharge)
	} else {
		m.fullTimer.Stop()
	}
}

func (m *Meter) detectFullDischarge(voltage float64) {
	if voltage <= m.cfg.DischargeVoltage && !m.fullyDischarged {
		arm(m.emptyTimer, m.onFullDischarge)
	} else {
		m.emptyTimer.Stop()
	}
}

// arm starts a detection timer. A zero hold time declares the event on the
// first qualifying tick.
func arm(t *scheduler.Timer, fn func()) {
	if t.Duration == 0 {
		fn()
		return
	}
	t.Start(fn)
}

func (m *Meter) onFullCharge() {
	m.fullyCharged = true
	m.counters.CurrentChargeC = m.capacityC()
	m.counters.CurrentEnergyJ = m.capacityJ()
	m.counters.Marks = &Marks{
		ChargeInC:  m.counters.ChargeInC,
		ChargeOutC: m.counters.ChargeOutC,
		EnergyInJ:  m.counters.EnergyInJ,
		EnergyOutJ: m.counters.EnergyOutJ,
	}
	log.Info().Float64("voltage", m.src.Voltage()).Msg("Battery fully charged")
	m.record(model.EventFullCharge, m.src.Voltage())
}

func (m *Meter) onFullDischarge() {
	m.fullyDischarged = true
	log.Info().Float64("voltage", m.src.Voltage()).Msg("Battery fully discharged")
	m.record(model.EventFullDischarge, m.src.Voltage())

	m.learnCapacity()
	m.counters.CurrentChargeC = 0
	m.counters.CurrentEnergyJ = 0
}

func (m *Meter) learnCapacity() {
	marks := m.counters.Marks
	if marks == nil {
		log.Info().Msg("No full charge recorded yet, capacity not learned")
		return
	}

	charge := delta(m.counters.ChargeOutC, marks.ChargeOutC) - delta(m.counters.ChargeInC, marks.ChargeInC)
	if charge > 0 {
		m.learned.ChargeC = &charge
		log.Info().Float64("capacity_ah", float64(charge)/secPerHour).Msg("Learned charge capacity")
		m.record(model.EventCapacityLearned, float64(charge)/secPerHour)
	} else {
		log.Warn().Int64("charge_c", charge).Msg("Rejected non-positive charge capacity")
		m.record(model.EventCapacityRejected, float64(charge)/secPerHour)
	}

	energy := delta(m.counters.EnergyOutJ, marks.EnergyOutJ) - delta(m.counters.EnergyInJ, marks.EnergyInJ)
	if energy > 0 {
		m.learned.EnergyJ = &energy
		log.Info().Float64("capacity_wh", float64(energy)/secPerHour).Msg("Learned energy capacity")
		m.record(model.EventEnergyLearned, float64(energy)/secPerHour)
	} else {
		log.Warn().Int64("energy_j", energy).Msg("Rejected non-positive energy capacity")
		m.record(model.EventEnergyRejected, float64(energy)/secPerHour)
	}

	m.FlushCapacity()
}

func (m *Meter) sampleAverage() {
	if m.state != model.MeterIdle || !m.src.Healthy() {
		return
	}
	energy := m.src.EnergyJ()
	if !m.avgPrimed {
		m.avgPrevJ, m.avgPrimed = energy, true
		return
	}
	avg := m.avg.Add(float64(energy - m.avgPrevJ))
	m.avgPrevJ = energy
	m.timeToFull, m.timeToEmpty = estimate(avg, float64(m.cfg.AverageIntervalSeconds), m.counters.CurrentEnergyJ, m.capacityJ())
}

// FlushCapacity persists the learned capacity when it differs from what is
// stored.
func (m *Meter) FlushCapacity() {
	if m.learned.Equal(m.stored) {
		return
	}
	learned := m.learned
	if err := m.capacitySlot.Save(&learned); err != nil {
		log.Error().Err(err).Msg("Failed to persist learned capacity")
		return
	}
	m.stored = learned
	log.Info().Msg("Persisted learned capacity")
}

func (m *Meter) FlushCounters() {
	if m.state != model.MeterIdle {
		return
	}
	counters := m.counters
	if err := m.countersSlot.Save(&counters); err != nil {
		log.Warn().Err(err).Msg("Failed to persist meter counters")
	}
}

// Flush persists everything, for use at shutdown.
func (m *Meter) Flush() {
	m.FlushCounters()
	m.FlushCapacity()
}

func (m *Meter) setWarning(on bool) {
	if m.health.Warning == on {
		return
	}
	m.health.Warning = on
	m.health.Message = ""
	if on {
		m.health.Message = "Sensor read failure"
		log.Warn().Msg("Meter skipping ticks, source unhealthy")
	}
	if m.status != nil {
		m.status.PublishStatus(component, m.health)
	}
}

func (m *Meter) record(kind model.EventKind, value float64) {
	if m.recorder != nil {
		m.recorder.Record(kind, value)
	}
}

func (m *Meter) capacityC() int64 {
	if m.learned.ChargeC != nil {
		return *m.learned.ChargeC
	}
	return int64(m.cfg.CapacityAh * secPerHour)
}

func (m *Meter) capacityJ() int64 {
	if m.learned.EnergyJ != nil {
		return *m.learned.EnergyJ
	}
	return int64(m.cfg.EnergyFullWh * secPerHour)
}

func (m *Meter) rawLevel() int64 {
	return mathx.ClampMap(m.counters.CurrentChargeC, 0, m.capacityC(), 0, 100)
}

func (m *Meter) rawEnergyLevel() int64 {
	return mathx.ClampMap(m.counters.CurrentEnergyJ, 0, m.capacityJ(), 0, 100)
}

// displayLevel keeps 100 and 0 for confirmed full and empty events.
func (m *Meter) displayLevel(level int64) int64 {
	if level >= 100 && !m.fullyCharged {
		return 99
	}
	if level <= 0 && !m.fullyDischarged {
		return 1
	}
	return level
}

func (m *Meter) State() model.MeterState {
	return m.state
}

func (m *Meter) Counters() Counters {
	return m.counters
}

func (m *Meter) Learned() LearnedCapacity {
	return m.learned
}

func (m *Meter) Snapshot() model.MeterSnapshot {
	snap := model.MeterSnapshot{
		State:           m.state,
		LevelPercent:    m.displayLevel(m.rawLevel()),
		EnergyPercent:   m.displayLevel(m.rawEnergyLevel()),
		RemainingAh:     float64(m.counters.CurrentChargeC) / secPerHour,
		RemainingWh:     float64(m.counters.CurrentEnergyJ) / secPerHour,
		ChargeInAh:      float64(m.counters.ChargeInC) / secPerHour,
		ChargeOutAh:     float64(m.counters.ChargeOutC) / secPerHour,
		EnergyInWh:      float64(m.counters.EnergyInJ) / secPerHour,
		EnergyOutWh:     float64(m.counters.EnergyOutJ) / secPerHour,
		TimeToFullMin:   finite(m.timeToFull),
		TimeToEmptyMin:  finite(m.timeToEmpty),
		FullyCharged:    m.fullyCharged,
		FullyDischarged: m.fullyDischarged,
		Status:          m.health,
		UpdatedAt:       m.sched.Now(),
	}
	if m.learned.ChargeC != nil {
		ah := float64(*m.learned.ChargeC) / secPerHour
		snap.LearnedAh = &ah
	}
	if m.learned.EnergyJ != nil {
		wh := float64(*m.learned.EnergyJ) / secPerHour
		snap.LearnedWh = &wh
	}
	return snap
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
