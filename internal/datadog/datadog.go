package datadog

import (
	"math"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/sensor"
)

type gauger interface {
	Gauge(name string, value float64, tags []string, rate float64) error
}

var dogstatsd gauger

func InitMetrics(addr, namespace string, tags []string) {
	client, err := statsd.New(addr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	client.Namespace = namespace
	client.Tags = tags
	dogstatsd = client

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd == nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

// Sink emits every numeric metric and status flag as a gauge.
type Sink struct{}

func (Sink) Output(m sensor.Metric) sensor.Output {
	return sensor.OutputFunc(func(v float64) {
		Gauge(m.ID, v)
	})
}

func (Sink) PublishStatus(component string, status model.Status) {
	Gauge("status.error", boolGauge(status.Error), "component:"+component)
	Gauge("status.warning", boolGauge(status.Warning), "component:"+component)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
