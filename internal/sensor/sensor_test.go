package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/battery-controller/internal/model"
)

type recordingSink struct {
	only   string
	values map[string][]float64
	texts  []string
	status []model.Status
}

func newRecordingSink(only string) *recordingSink {
	return &recordingSink{only: only, values: map[string][]float64{}}
}

func (r *recordingSink) Output(m Metric) Output {
	if r.only != "" && m.ID != r.only {
		return nil
	}
	return OutputFunc(func(v float64) { r.values[m.ID] = append(r.values[m.ID], v) })
}

func (r *recordingSink) TextOutput(m Metric) TextOutput {
	return textFunc(func(s string) { r.texts = append(r.texts, s) })
}

func (r *recordingSink) PublishStatus(component string, s model.Status) {
	r.status = append(r.status, s)
}

type textFunc func(string)

func (f textFunc) PublishText(s string) { f(s) }

func TestNewOutputs_FansOutToEverySink(t *testing.T) {
	a, b := newRecordingSink(""), newRecordingSink(ChargeLevel)
	outs := NewOutputs(nil, a, b)

	require.NotNil(t, outs.Get(ChargeLevel))
	outs.Get(ChargeLevel).Publish(42)
	outs.Get(ChargeIn).Publish(1.5)

	assert.Equal(t, []float64{42}, a.values[ChargeLevel])
	assert.Equal(t, []float64{42}, b.values[ChargeLevel])
	assert.Equal(t, []float64{1.5}, a.values[ChargeIn])
	assert.Empty(t, b.values[ChargeIn])

	outs.Text(ChargePhase).PublishText("FLOAT")
	assert.Equal(t, []string{"FLOAT"}, a.texts)
	assert.Nil(t, outs.Get(ChargePhase))

	outs.Status().PublishStatus("charger", model.Status{Error: true})
	assert.Len(t, a.status, 1)
	assert.Len(t, b.status, 1)
}

func TestNewOutputs_EnabledFilter(t *testing.T) {
	a := newRecordingSink("")
	outs := NewOutputs([]string{ChargeLevel, TimeToFull}, a)

	assert.NotNil(t, outs.Get(ChargeLevel))
	assert.NotNil(t, outs.Get(TimeToFull))
	assert.Nil(t, outs.Get(ChargeIn))
	assert.Nil(t, outs.Text(ChargePhase))
}

func TestNewOutputs_NoSinks(t *testing.T) {
	outs := NewOutputs(nil)
	assert.Nil(t, outs.Get(ChargeLevel))
	assert.Nil(t, outs.Status())
}

func TestLookup(t *testing.T) {
	m, ok := Lookup(EnergyIn)
	require.True(t, ok)
	assert.Equal(t, "Wh", m.Unit)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}
