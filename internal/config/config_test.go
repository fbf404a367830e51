package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"charger": {
		"float_voltage": 13.5,
		"absorption_voltage": 14.4,
		"absorption_restart_voltage": 12.8,
		"absorption_current": 2.0,
		"max_voltage": 15.0,
		"min_voltage": 10.5,
		"absorption_seconds": 7200,
		"absorption_restart_seconds": 86400,
		"recovery_seconds": 600
	},
	"meter": {
		"capacity_ah": 100,
		"energy_full_wh": 1280,
		"fullcharge_voltage": 14.2,
		"fullcharge_current": 2.0,
		"fullcharge_seconds": 120,
		"discharge_voltage": 11.8,
		"discharge_seconds": 60
	},
	"source": {
		"kind": "hwmon",
		"hwmon_path": "/sys/class/hwmon/hwmon2"
	}
}`

func validConfig() Config {
	var cfg Config
	if err := cfg.decode(strings.NewReader(sampleConfig)); err != nil {
		panic(err)
	}
	cfg.applyDefaults()
	return cfg
}

func TestDecode_AppliesDefaults(t *testing.T) {
	cfg := validConfig()

	require.NotNil(t, cfg.Charger.FloatVoltage)
	assert.Equal(t, 13.5, *cfg.Charger.FloatVoltage)
	assert.Nil(t, cfg.Charger.EqualizationVoltage)

	assert.Equal(t, 60, *cfg.Charger.AbsorptionLowVoltageSeconds)
	assert.Equal(t, 3600, *cfg.Charger.EqualizationSeconds)
	assert.Equal(t, 604800, *cfg.Charger.EqualizationIntervalSeconds)
	assert.Equal(t, 10800, *cfg.Charger.EqualizationTimeoutSeconds)

	assert.Equal(t, 60, cfg.Meter.UpdateIntervalSeconds)
	assert.Equal(t, 8, cfg.Meter.AverageWindow)
	assert.Equal(t, 30, cfg.Meter.AverageIntervalSeconds)
	assert.Equal(t, "0 0 * * * *", cfg.Meter.CapacityFlushCron)
	assert.Equal(t, 100, cfg.Source.SampleIntervalMillis)
	assert.Equal(t, "data/battery.db", cfg.Storage.DBPath)

	cfg.validate()
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	var cfg Config
	err := cfg.decode(strings.NewReader(`{"charger": {"flaot_voltage": 13.5}}`))
	assert.Error(t, err)
}

func TestDecode_ExplicitZeroDurationKept(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.decode(strings.NewReader(`{"charger": {"equalization_seconds": 0}}`)))
	cfg.applyDefaults()
	assert.Equal(t, 0, *cfg.Charger.EqualizationSeconds)
}

func TestApplyEnv_OverridesSecrets(t *testing.T) {
	t.Setenv("MQTT_PASSWORD", "hunter2")
	t.Setenv("NTFY_TOPIC", "battery-alerts")
	t.Setenv("DD_AGENT_ADDR", "127.0.0.1:8125")

	cfg := validConfig()
	cfg.DDAgentAddr = "10.0.0.1:8125"
	cfg.applyEnv()

	assert.Equal(t, "hunter2", cfg.MQTT.Password)
	assert.Equal(t, "battery-alerts", cfg.NtfyTopic)
	assert.Equal(t, "127.0.0.1:8125", cfg.DDAgentAddr)
}

func TestValidate_MissingFloatVoltage(t *testing.T) {
	cfg := validConfig()
	cfg.Charger.FloatVoltage = nil

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic due to missing float voltage")
		assert.Contains(t, r, "charger.float_voltage")
	}()

	cfg.validate()
}

func TestValidate_InvertedBounds(t *testing.T) {
	cfg := validConfig()
	low, high := 15.0, 10.0
	cfg.Charger.MinVoltage = &low
	cfg.Charger.MaxVoltage = &high

	assert.Panics(t, func() { cfg.validate() })
}

func TestValidate_DischargeAboveFullCharge(t *testing.T) {
	cfg := validConfig()
	cfg.Meter.DischargeVoltage = 14.5

	assert.Panics(t, func() { cfg.validate() })
}

func TestValidate_UnknownSourceKind(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Kind = "serial"

	assert.Panics(t, func() { cfg.validate() })
}

func TestValidate_MQTTRequiresBroker(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Enabled = true

	assert.Panics(t, func() { cfg.validate() })

	cfg.MQTT.Broker = "tcp://localhost:1883"
	assert.NotPanics(t, func() { cfg.validate() })
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("verbose"))
}

func TestRead_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	var cfg Config
	require.NoError(t, Read(path, &cfg))
	assert.Equal(t, 8, cfg.Meter.AverageWindow)

	err := Read(filepath.Join(t.TempDir(), "missing.json"), &cfg)
	assert.ErrorContains(t, err, "failed to load config file")
}
