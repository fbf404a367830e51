package meter

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/sensor"
)

// step is one slot of the reporting cycle. available reports whether the
// step has anything to do this round.
type step struct {
	name      string
	available func() bool
	run       func()
}

func (m *Meter) reportSteps() []step {
	learnedCharge := func() bool { return m.learned.ChargeC != nil }
	learnedEnergy := func() bool { return m.learned.EnergyJ != nil }

	return []step{
		m.metricStep(sensor.ChargeLevel, nil, func() float64 { return float64(m.displayLevel(m.rawLevel())) }),
		m.metricStep(sensor.EnergyLevel, nil, func() float64 { return float64(m.displayLevel(m.rawEnergyLevel())) }),
		m.metricStep(sensor.ChargeIn, nil, func() float64 { return float64(m.counters.ChargeInC) / secPerHour }),
		m.metricStep(sensor.ChargeOut, nil, func() float64 { return float64(m.counters.ChargeOutC) / secPerHour }),
		m.metricStep(sensor.EnergyIn, nil, func() float64 { return float64(m.counters.EnergyInJ) / secPerHour }),
		m.metricStep(sensor.EnergyOut, nil, func() float64 { return float64(m.counters.EnergyOutJ) / secPerHour }),
		m.metricStep(sensor.ChargeRemaining, nil, func() float64 { return float64(m.counters.CurrentChargeC) / secPerHour }),
		m.metricStep(sensor.EnergyRemaining, nil, func() float64 { return float64(m.counters.CurrentEnergyJ) / secPerHour }),
		m.metricStep(sensor.ChargeCalculated, learnedCharge, func() float64 { return float64(*m.learned.ChargeC) / secPerHour }),
		m.metricStep(sensor.EnergyCalculated, learnedEnergy, func() float64 { return float64(*m.learned.EnergyJ) / secPerHour }),
		m.metricStep(sensor.TimeToFull, nil, func() float64 { return m.timeToFull }),
		m.metricStep(sensor.TimeToEmpty, nil, func() float64 { return m.timeToEmpty }),
		m.metricStep(sensor.ReadsPerSecond, nil, m.src.ReadsPerSecond),
		{name: "flush", available: func() bool { return true }, run: m.FlushCounters},
	}
}

func (m *Meter) metricStep(id string, cond func() bool, value func() float64) step {
	out := m.outputs.Get(id)
	return step{
		name: id,
		available: func() bool {
			return out != nil && (cond == nil || cond())
		},
		run: func() {
			out.Publish(value())
		},
	}
}

// report runs the next available step. Unavailable steps are passed over
// within the same tick.
func (m *Meter) report() {
	if m.state != model.MeterIdle {
		return
	}
	for range m.steps {
		s := m.steps[m.cursor]
		m.cursor = (m.cursor + 1) % len(m.steps)
		if s.available() {
			log.Debug().Str("step", s.name).Msg("Meter report")
			s.run()
			return
		}
	}
}
