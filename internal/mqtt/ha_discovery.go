package mqtt

import (
	"fmt"
	"strings"

	"github.com/carlmjohnson/versioninfo"

	"github.com/thatsimonsguy/battery-controller/internal/sensor"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
}

func (p *Publisher) device() HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:      []string{p.cfg.DeviceID},
		Version: versioninfo.Short(),
		Model:   "battery-controller",
		Name:    p.cfg.DeviceID,
	}
}

func (p *Publisher) SensorDiscoveryTopic(id string) string {
	return fmt.Sprintf("homeassistant/sensor/%s/%s/config", p.cfg.DeviceID, id)
}

func (p *Publisher) BinarySensorDiscoveryTopic(id string) string {
	return fmt.Sprintf("homeassistant/binary_sensor/%s/%s/config", p.cfg.DeviceID, id)
}

func (p *Publisher) SensorDiscovery(m sensor.Metric) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:            p.device(),
		StateTopic:        p.SensorStateTopic(m.ID),
		StateClass:        m.StateClass,
		DeviceClass:       m.DeviceClass,
		UnitOfMeasurement: m.Unit,
		AvTopic:           p.BridgeStateTopic(),
		Name:              m.Name,
		UniqueId:          p.cfg.DeviceID + "_" + m.ID,
		Platform:          "mqtt",
	}
}

func (p *Publisher) ProblemDiscovery(component string) HADiscoveryConfig {
	id := problemID(component)
	return HADiscoveryConfig{
		Device:         p.device(),
		StateTopic:     p.BinarySensorStateTopic(id),
		DeviceClass:    "problem",
		AvTopic:        p.BridgeStateTopic(),
		EntityCategory: "diagnostic",
		Name:           strings.ToUpper(component[:1]) + component[1:] + " problem",
		UniqueId:       p.cfg.DeviceID + "_" + id,
		Platform:       "mqtt",
		PayloadOn:      PayloadOn,
		PayloadOff:     PayloadOff,
	}
}

// PublishDiscovery announces every metric and problem flag.
func (p *Publisher) PublishDiscovery() {
	for _, m := range sensor.Metrics {
		p.publishJSON(p.SensorDiscoveryTopic(m.ID), p.SensorDiscovery(m))
	}
	for _, c := range Components {
		p.publishJSON(p.BinarySensorDiscoveryTopic(problemID(c)), p.ProblemDiscovery(c))
	}
}
