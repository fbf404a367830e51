package chargecontroller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/battery-controller/internal/config"
	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/scheduler"
)

type capture struct {
	targets  []float64
	labels   []string
	statuses []model.Status
	events   []model.EventKind
}

func (c *capture) Publish(v float64)    { c.targets = append(c.targets, v) }
func (c *capture) PublishText(s string) { c.labels = append(c.labels, s) }

func (c *capture) Record(k model.EventKind, _ float64) {
	c.events = append(c.events, k)
}

func (c *capture) PublishStatus(_ string, s model.Status) {
	c.statuses = append(c.statuses, s)
}

func (c *capture) lastTarget() float64 {
	if len(c.targets) == 0 {
		return -1
	}
	return c.targets[len(c.targets)-1]
}

func newTestController(t *testing.T, cfg config.Charger) (*Controller, *scheduler.Manual, *capture) {
	t.Helper()
	m := scheduler.NewManual(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	out := &capture{}
	c, err := New(cfg, Deps{Scheduler: m, Target: out, Phase: out, Status: out, Recorder: out})
	require.NoError(t, err)
	c.Start()
	return c, m, out
}

// settle lets any chain of deferred transitions complete.
func settle(m *scheduler.Manual) {
	m.Advance(100 * time.Millisecond)
}

// feed delivers a voltage sample every minute for d.
func feed(c *Controller, m *scheduler.Manual, v float64, d time.Duration) {
	const step = time.Minute
	for left := d; left > 0; left -= step {
		c.OnVoltage(v)
		if left < step {
			m.Advance(left)
			return
		}
		m.Advance(step)
	}
}

func assertTimersAllowed(t *testing.T, c *Controller) {
	t.Helper()
	assert.Empty(t, unexpectedTimers(c.Phase(), c.RunningTimers()), "phase %s", c.Phase())
}

func TestNew_RequiresFloatVoltage(t *testing.T) {
	cfg := baseConfig()
	cfg.FloatVoltage = nil
	_, err := New(cfg, Deps{Scheduler: scheduler.NewManual(time.Now())})
	assert.ErrorIs(t, err, ErrNoFloatVoltage)
}

func TestController_AbsorptionThenFloat(t *testing.T) {
	c, m, out := newTestController(t, baseConfig())

	c.OnVoltage(13.0)
	assert.Equal(t, model.PhaseInitial, c.Phase(), "transition is deferred")
	settle(m)
	assert.Equal(t, model.PhaseAbsorption, c.Phase())
	assert.Equal(t, []float64{14.4}, out.targets)
	assert.Equal(t, []string{"ABSORPTION"}, out.labels)
	assertTimersAllowed(t, c)

	feed(c, m, 14.5, 30*time.Minute)
	assert.Equal(t, model.PhaseAbsorption, c.Phase())
	assert.Contains(t, c.RunningTimers(), TimerAbsorption)

	feed(c, m, 14.5, 32*time.Minute)
	settle(m)
	assert.Equal(t, model.PhaseFloat, c.Phase())
	assert.Equal(t, 13.5, out.lastTarget())
	assert.Equal(t, []string{"ABSORPTION", "FLOAT"}, out.labels)
	assert.Contains(t, c.RunningTimers(), TimerAbsorptionRestart)
	assertTimersAllowed(t, c)
}

func TestController_AbsorptionTimerResetsBelowSetpoint(t *testing.T) {
	c, m, _ := newTestController(t, baseConfig())
	c.OnVoltage(13.0)
	settle(m)

	feed(c, m, 14.5, 50*time.Minute)
	feed(c, m, 14.2, time.Minute)
	assert.NotContains(t, c.RunningTimers(), TimerAbsorption)

	feed(c, m, 14.5, 50*time.Minute)
	assert.Equal(t, model.PhaseAbsorption, c.Phase(), "timer restarted from zero")
}

func TestController_CurrentCutoffHoldsAbsorption(t *testing.T) {
	cfg := baseConfig()
	cfg.AbsorptionCurrent = fp(2.0)
	c, m, _ := newTestController(t, cfg)
	c.OnVoltage(13.0)
	settle(m)

	c.OnCurrent(5.0)
	feed(c, m, 14.5, 2*time.Hour)
	settle(m)
	assert.Equal(t, model.PhaseAbsorption, c.Phase())
	assert.NotContains(t, c.RunningTimers(), TimerAbsorption)

	c.OnCurrent(1.0)
	feed(c, m, 14.5, 61*time.Minute)
	settle(m)
	assert.Equal(t, model.PhaseFloat, c.Phase())
}

func TestController_FloatLowVoltageReturnsToAbsorption(t *testing.T) {
	cfg := baseConfig()
	cfg.AbsorptionSeconds = 60
	c, m, out := newTestController(t, cfg)
	c.OnVoltage(13.0)
	settle(m)
	feed(c, m, 14.5, 2*time.Minute)
	settle(m)
	require.Equal(t, model.PhaseFloat, c.Phase())

	feed(c, m, 13.0, 10*time.Minute)
	assert.Equal(t, model.PhaseFloat, c.Phase())

	feed(c, m, 12.5, 2*time.Minute)
	settle(m)
	assert.Equal(t, model.PhaseAbsorption, c.Phase())
	assert.Equal(t, 14.4, out.lastTarget())
	assert.NotContains(t, c.RunningTimers(), TimerAbsorptionRestart)
	assertTimersAllowed(t, c)
}

func TestController_OutOfBoundsAndRecovery(t *testing.T) {
	c, m, out := newTestController(t, baseConfig())
	c.OnVoltage(13.0)
	settle(m)

	c.OnVoltage(15.5)
	assert.Equal(t, model.PhaseBeforeError, c.Phase(), "bounds violation acts in the same tick")
	assert.Equal(t, 0.0, c.Target())
	assert.True(t, c.Status().Error)
	assert.Equal(t, "Battery voltage 15.50 V above max_voltage 15.00 V", c.Status().Message)
	settle(m)
	assert.Equal(t, model.PhaseError, c.Phase())

	feed(c, m, 15.5, 15*time.Minute)
	assert.Equal(t, model.PhaseError, c.Phase())
	assert.NotContains(t, c.RunningTimers(), TimerRecovery)

	feed(c, m, 13.0, 11*time.Minute)
	settle(m)
	assert.Equal(t, model.PhaseAbsorption, c.Phase())
	assert.False(t, c.Status().Error)
	assert.Equal(t, 14.4, out.lastTarget())
	assert.Equal(t, []model.EventKind{model.EventChargerError, model.EventChargerRecovered}, out.events)
	assertTimersAllowed(t, c)
}

func TestController_NoRecoveryWithoutDuration(t *testing.T) {
	cfg := baseConfig()
	cfg.RecoverySeconds = 0
	c, m, _ := newTestController(t, cfg)

	c.OnVoltage(9.0)
	settle(m)
	feed(c, m, 13.0, 24*time.Hour)
	assert.Equal(t, model.PhaseError, c.Phase())
	assert.True(t, c.Status().Error)
}

func TestController_DeferredTransitionIsReplaced(t *testing.T) {
	c, m, _ := newTestController(t, baseConfig())

	c.OnVoltage(13.0)
	assert.True(t, m.Pending(component+"/"+deferredUpdate))
	c.OnVoltage(15.5)
	m.Advance(16 * time.Millisecond)

	assert.Equal(t, model.PhaseError, c.Phase())
}

func TestController_VoltageWatchdog(t *testing.T) {
	c, m, out := newTestController(t, baseConfig())
	c.OnVoltage(13.0)

	m.Advance(5 * time.Minute)
	settle(m)
	assert.Equal(t, model.PhaseError, c.Phase())
	assert.True(t, c.Status().Error)
	assert.Contains(t, c.Status().Message, "No voltage update")
	assert.Equal(t, 0.0, out.lastTarget())

	// a stale reading must not trigger recovery
	m.Advance(30 * time.Minute)
	assert.Equal(t, model.PhaseError, c.Phase())

	feed(c, m, 13.0, 11*time.Minute)
	settle(m)
	assert.Equal(t, model.PhaseAbsorption, c.Phase())
	assert.False(t, c.Status().Error)
}

func TestController_WatchdogRearmedBySamples(t *testing.T) {
	c, m, _ := newTestController(t, baseConfig())
	feed(c, m, 13.0, 20*time.Minute)
	assert.Equal(t, model.PhaseAbsorption, c.Phase())
	assert.False(t, c.Status().Error)
}

func TestController_EqualizationCycle(t *testing.T) {
	cfg := baseConfig()
	cfg.AbsorptionVoltage = nil
	cfg.AbsorptionRestartVoltage = nil
	cfg.EqualizationVoltage = fp(14.8)
	cfg.EqualizationIntervalSeconds = ip(86400)
	c, m, out := newTestController(t, cfg)

	c.OnVoltage(13.2)
	settle(m)
	require.Equal(t, model.PhaseFloat, c.Phase())
	assert.Contains(t, c.RunningTimers(), TimerEqualizationInterval)

	feed(c, m, 13.2, 24*time.Hour+time.Minute)
	settle(m)
	assert.Equal(t, model.PhaseEqualization, c.Phase())
	assert.Equal(t, 14.8, out.lastTarget())
	assert.Contains(t, c.RunningTimers(), TimerEqualizationTimeout)
	assertTimersAllowed(t, c)

	feed(c, m, 14.9, 61*time.Minute)
	settle(m)
	assert.Equal(t, model.PhaseFloat, c.Phase())
	assert.Equal(t, []float64{13.5, 14.8, 13.5}, out.targets)
	assert.Equal(t, []string{"FLOAT", "EQUALIZATION", "FLOAT"}, out.labels)
	assert.ElementsMatch(t, []TimerID{TimerEqualizationInterval}, c.RunningTimers())
	assert.Contains(t, out.events, model.EventEqualizationStart)
}

func TestController_EqualizationTimeout(t *testing.T) {
	cfg := baseConfig()
	cfg.AbsorptionVoltage = nil
	cfg.AbsorptionRestartVoltage = nil
	cfg.EqualizationVoltage = fp(14.8)
	cfg.EqualizationIntervalSeconds = ip(3600)
	cfg.EqualizationTimeoutSeconds = ip(7200)
	c, m, _ := newTestController(t, cfg)

	c.OnVoltage(13.2)
	settle(m)
	feed(c, m, 13.2, 61*time.Minute)
	settle(m)
	require.Equal(t, model.PhaseEqualization, c.Phase())

	// never reaches the equalization voltage
	feed(c, m, 14.0, 100*time.Minute)
	assert.Equal(t, model.PhaseEqualization, c.Phase())
	feed(c, m, 14.0, 30*time.Minute)
	settle(m)
	assert.Equal(t, model.PhaseFloat, c.Phase())
	assert.ElementsMatch(t, []TimerID{TimerEqualizationInterval}, c.RunningTimers())
}

func TestController_UnknownPhaseFails(t *testing.T) {
	c, m, out := newTestController(t, baseConfig())
	c.phase = model.ChargePhase("bulk")

	c.OnVoltage(13.0)
	assert.True(t, c.Failed())
	assert.True(t, c.Status().Error)

	n := len(out.targets)
	feed(c, m, 13.0, 10*time.Minute)
	assert.Len(t, out.targets, n)
}

func TestController_Snapshot(t *testing.T) {
	c, m, _ := newTestController(t, baseConfig())
	snap := c.Snapshot()
	assert.Nil(t, snap.Voltage)

	c.OnVoltage(13.0)
	c.OnCurrent(-2.5)
	settle(m)
	snap = c.Snapshot()
	require.NotNil(t, snap.Voltage)
	assert.Equal(t, 13.0, *snap.Voltage)
	assert.Equal(t, -2.5, *snap.Current)
	assert.Equal(t, model.PhaseAbsorption, snap.Phase)
	assert.Equal(t, 14.4, snap.Target)
}
