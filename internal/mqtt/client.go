// Package mqtt publishes battery metrics and component status to an MQTT
// broker and announces them through Home Assistant discovery.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/config"
	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/sensor"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
	PayloadOn      = "on"
	PayloadOff     = "off"
	PayloadUnknown = "unknown"

	publishTimeout = 5 * time.Second
)

// Components that report a problem flag.
var Components = []string{"charger", "meter", "source"}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type Publisher struct {
	client publisher
	conn   paho.Client
	cfg    config.MQTT
}

func OptsFromConfig(cfg config.MQTT) *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.WillEnabled = true
	opts.WillPayload = []byte(PayloadOffline)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.BaseTopic)
	opts.WillQos = 0
	return opts
}

// New builds a publisher. Discovery and the online marker are (re)sent on
// every connect.
func New(cfg config.MQTT) *Publisher {
	p := &Publisher{cfg: cfg}
	opts := OptsFromConfig(cfg)
	opts.OnConnect = func(paho.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		p.announce()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}
	p.conn = paho.NewClient(opts)
	p.client = p.conn
	return p
}

func (p *Publisher) Connect(timeout time.Duration) error {
	token := p.conn.Connect()
	if !token.WaitTimeout(timeout) {
		return errors.New("MQTT connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", p.cfg.Broker, err)
	}
	return nil
}

func (p *Publisher) Close() {
	token := p.client.Publish(p.BridgeStateTopic(), 0, true, PayloadOffline)
	token.WaitTimeout(time.Second)
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}

func (p *Publisher) announce() {
	if p.cfg.Discovery {
		p.PublishDiscovery()
	}
	p.publish(p.BridgeStateTopic(), true, PayloadOnline)
}

func (p *Publisher) BridgeStateTopic() string {
	return bridgeStateTopic(p.cfg.BaseTopic)
}

func (p *Publisher) SensorStateTopic(id string) string {
	return fmt.Sprintf("%s/sensor/%s/state", p.cfg.BaseTopic, id)
}

func (p *Publisher) BinarySensorStateTopic(id string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/state", p.cfg.BaseTopic, id)
}

func bridgeStateTopic(base string) string {
	return fmt.Sprintf("%s/bridge/state", base)
}

func problemID(component string) string {
	return component + "_problem"
}

// Output implements sensor.Sink.
func (p *Publisher) Output(m sensor.Metric) sensor.Output {
	topic := p.SensorStateTopic(m.ID)
	return sensor.OutputFunc(func(v float64) {
		p.publish(topic, false, formatValue(v, m.Decimals))
	})
}

// TextOutput implements sensor.TextSink.
func (p *Publisher) TextOutput(m sensor.Metric) sensor.TextOutput {
	return textOutput{p: p, topic: p.SensorStateTopic(m.ID)}
}

type textOutput struct {
	p     *Publisher
	topic string
}

func (t textOutput) PublishText(v string) {
	t.p.publish(t.topic, true, v)
}

func (p *Publisher) PublishStatus(component string, status model.Status) {
	payload := PayloadOff
	if status.Error || status.Warning {
		payload = PayloadOn
	}
	p.publish(p.BinarySensorStateTopic(problemID(component)), true, payload)
}

// publish is fire and forget. Delivery failures are logged.
func (p *Publisher) publish(topic string, retain bool, payload string) {
	token := p.client.Publish(topic, 0, retain, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

func (p *Publisher) publishJSON(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to encode MQTT payload")
		return
	}
	p.publish(topic, true, string(data))
}

func formatValue(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return PayloadUnknown
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
