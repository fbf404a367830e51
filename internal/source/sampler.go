// Package source reads battery voltage and current from a device and
// integrates current into charge and energy counters.
package source

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/sensor"
)

const component = "source"

// Device returns one voltage (V) and current (A) reading. Positive current
// charges the battery.
type Device interface {
	Read() (voltage, current float64, err error)
	Close() error
}

type Listener interface {
	OnVoltage(v float64)
	OnCurrent(a float64)
}

type Options struct {
	Interval       time.Duration
	NotifyInterval time.Duration
	// Post runs a callback on the event loop.
	Post     func(fn func()) bool
	Listener Listener
	Voltage  sensor.Output
	Current  sensor.Output
	Status   sensor.StatusOutput
	Now      func() time.Time
}

// Sampler polls a Device on its own goroutine. Its accessors are safe to
// call from the event loop.
type Sampler struct {
	dev  Device
	opts Options

	mu         sync.Mutex
	voltage    float64
	current    float64
	hasVoltage bool
	healthy    bool
	chargeMC   int64
	energyMJ   int64
	carryMC    float64
	carryMJ    float64
	last       time.Time
	lastNotify time.Time
	reads      int
	rateStart  time.Time
}

func NewSampler(dev Device, opts Options) *Sampler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Post == nil {
		opts.Post = func(fn func()) bool { fn(); return true }
	}
	return &Sampler{
		dev:       dev,
		opts:      opts,
		voltage:   math.NaN(),
		current:   math.NaN(),
		healthy:   true,
		rateStart: opts.Now(),
	}
}

// Run samples until ctx is cancelled, then closes the device.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	defer func() {
		if err := s.dev.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close reading device")
		}
	}()

	log.Info().Dur("interval", s.opts.Interval).Msg("Sampler started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.sample(now)
		}
	}
}

func (s *Sampler) sample(now time.Time) {
	v, a, err := s.dev.Read()

	s.mu.Lock()
	if err != nil {
		wasHealthy := s.healthy
		s.healthy = false
		// no extrapolation across a gap
		s.last = time.Time{}
		s.mu.Unlock()
		if wasHealthy {
			log.Warn().Err(err).Msg("Battery reading failed")
			s.publishStatus(model.Status{Warning: true, Message: "Sensor read failure"})
		}
		return
	}

	recovered := !s.healthy
	if !s.last.IsZero() {
		dt := now.Sub(s.last).Seconds()
		s.integrate(v, a, dt)
	}
	s.last = now
	s.voltage, s.current = v, a
	s.hasVoltage = true
	s.healthy = true
	s.reads++

	notify := s.opts.NotifyInterval <= 0 || s.lastNotify.IsZero() || now.Sub(s.lastNotify) >= s.opts.NotifyInterval
	if notify {
		s.lastNotify = now
	}
	s.mu.Unlock()

	if recovered {
		log.Info().Msg("Battery reading recovered")
		s.publishStatus(model.Status{})
	}
	if notify {
		s.opts.Post(func() { s.deliver(v, a) })
	}
}

// integrate books a*dt into milli-coulombs and v*a*dt into milli-joules.
// Fractions below one milli-unit carry over to the next sample.
func (s *Sampler) integrate(v, a, dt float64) {
	mc := a*dt*1000 + s.carryMC
	whole := math.Trunc(mc)
	s.carryMC = mc - whole
	s.chargeMC += int64(whole)

	mj := v*a*dt*1000 + s.carryMJ
	whole = math.Trunc(mj)
	s.carryMJ = mj - whole
	s.energyMJ += int64(whole)
}

func (s *Sampler) deliver(v, a float64) {
	if s.opts.Listener != nil {
		s.opts.Listener.OnVoltage(v)
		s.opts.Listener.OnCurrent(a)
	}
	if s.opts.Voltage != nil {
		s.opts.Voltage.Publish(v)
	}
	if s.opts.Current != nil {
		s.opts.Current.Publish(a)
	}
}

func (s *Sampler) publishStatus(st model.Status) {
	if s.opts.Status == nil {
		return
	}
	s.opts.Post(func() { s.opts.Status.PublishStatus(component, st) })
}

func (s *Sampler) Voltage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage
}

func (s *Sampler) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ChargeC is the integrated charge in whole coulombs.
func (s *Sampler) ChargeC() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return floorDiv(s.chargeMC, 1000)
}

// EnergyJ is the integrated energy in whole joules.
func (s *Sampler) EnergyJ() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return floorDiv(s.energyMJ, 1000)
}

func (s *Sampler) HasVoltage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasVoltage
}

func (s *Sampler) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

// ReadsPerSecond reports successful reads since the previous call.
func (s *Sampler) ReadsPerSecond() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opts.Now()
	elapsed := now.Sub(s.rateStart).Seconds()
	reads := s.reads
	s.reads = 0
	s.rateStart = now
	if elapsed <= 0 {
		return 0
	}
	return float64(reads) / elapsed
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
