package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Charger struct {
	FloatVoltage             *float64 `json:"float_voltage"`
	AbsorptionVoltage        *float64 `json:"absorption_voltage"`
	AbsorptionRestartVoltage *float64 `json:"absorption_restart_voltage"`
	AbsorptionCurrent        *float64 `json:"absorption_current"`
	EqualizationVoltage      *float64 `json:"equalization_voltage"`
	MaxVoltage               *float64 `json:"max_voltage"`
	MinVoltage               *float64 `json:"min_voltage"`

	AbsorptionSeconds           int  `json:"absorption_seconds"`
	AbsorptionRestartSeconds    int  `json:"absorption_restart_seconds"`
	AbsorptionLowVoltageSeconds *int `json:"absorption_low_voltage_seconds"`
	EqualizationSeconds         *int `json:"equalization_seconds"`
	EqualizationIntervalSeconds *int `json:"equalization_interval_seconds"`
	EqualizationTimeoutSeconds  *int `json:"equalization_timeout_seconds"`
	RecoverySeconds             int  `json:"recovery_seconds"`
}

type Meter struct {
	CapacityAh            float64  `json:"capacity_ah"`
	EnergyFullWh          float64  `json:"energy_full_wh"`
	FullChargeVoltage     float64  `json:"fullcharge_voltage"`
	FullChargeCurrent     *float64 `json:"fullcharge_current"`
	FullChargeSeconds     int      `json:"fullcharge_seconds"`
	DischargeVoltage      float64  `json:"discharge_voltage"`
	DischargeSeconds      int      `json:"discharge_seconds"`
	UpdateIntervalSeconds int      `json:"update_interval_seconds"`

	AverageWindow          int    `json:"average_window"`
	AverageIntervalSeconds int    `json:"average_interval_seconds"`
	CapacityFlushCron      string `json:"capacity_flush_cron"`
}

type Source struct {
	Kind                 string `json:"kind"` // hwmon or modbus
	SampleIntervalMillis int    `json:"sample_interval_ms"`
	NotifyIntervalMillis int    `json:"notify_interval_ms"`
	ReadRetries          int    `json:"read_retries"`
	HwmonPath            string `json:"hwmon_path"`
	ModbusURL            string `json:"modbus_url"`
	ModbusUnitID         uint8  `json:"modbus_unit_id"`
	ModbusTimeoutMillis  int    `json:"modbus_timeout_ms"`
	VoltageRegister      uint16 `json:"voltage_register"`
	VoltageScaleRegister uint16 `json:"voltage_scale_register"`
	CurrentRegister      uint16 `json:"current_register"`
	CurrentScaleRegister uint16 `json:"current_scale_register"`
	InvertCurrent        bool   `json:"invert_current"`
}

type Storage struct {
	DBPath       string `json:"db_path"`
	VolatilePath string `json:"volatile_path"`
}

type MQTT struct {
	Enabled   bool   `json:"enabled"`
	Broker    string `json:"broker"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	BaseTopic string `json:"base_topic"`
	DeviceID  string `json:"device_id"`
	Discovery bool   `json:"discovery"`
}

type Redis struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
}

type Outputs struct {
	Metrics      []string `json:"metrics"`
	ChargerRelay *int     `json:"charger_relay_pin"`
	ActiveHigh   bool     `json:"relay_active_high"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string
	LogConsole bool

	SafeMode bool `json:"safe_mode"`
	APIPort  int  `json:"api_port"`

	Charger Charger `json:"charger"`
	Meter   Meter   `json:"meter"`
	Source  Source  `json:"source"`
	Storage Storage `json:"storage"`
	MQTT    MQTT    `json:"mqtt"`
	Redis   Redis   `json:"redis"`
	Outputs Outputs `json:"outputs"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic string `json:"-"`

	ServiceUser     string `json:"service_user"`
	ServiceWorkdir  string `json:"service_workdir"`
	MainServicePath string `json:"main_service_path"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFile, "log-file", "/var/log/battery-controller.log", "Path to log file")
	flag.BoolVar(&cfg.LogConsole, "log-console", false, "Also log to stderr")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	if err := Read(cfg.ConfigFile, &cfg); err != nil {
		panic(err.Error())
	}
	cfg.validate()
	return cfg
}

// Read fills cfg from a config file, the environment and defaults without
// validating it.
func Read(path string, cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	defer file.Close()

	if err := cfg.decode(file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return nil
}

func (cfg *Config) decode(r io.Reader) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NTFY_TOPIC"); v != "" {
		cfg.NtfyTopic = v
	}
	if v := os.Getenv("DD_AGENT_ADDR"); v != "" {
		cfg.DDAgentAddr = v
	}
}

func (cfg *Config) applyDefaults() {
	c := &cfg.Charger
	if c.AbsorptionLowVoltageSeconds == nil {
		c.AbsorptionLowVoltageSeconds = intPtr(60)
	}
	if c.EqualizationSeconds == nil {
		c.EqualizationSeconds = intPtr(3600)
	}
	if c.EqualizationIntervalSeconds == nil {
		c.EqualizationIntervalSeconds = intPtr(604800)
	}
	if c.EqualizationTimeoutSeconds == nil {
		c.EqualizationTimeoutSeconds = intPtr(10800)
	}

	m := &cfg.Meter
	if m.UpdateIntervalSeconds == 0 {
		m.UpdateIntervalSeconds = 60
	}
	if m.AverageWindow == 0 {
		m.AverageWindow = 8
	}
	if m.AverageIntervalSeconds == 0 {
		m.AverageIntervalSeconds = 30
	}
	if m.CapacityFlushCron == "" {
		m.CapacityFlushCron = "0 0 * * * *"
	}

	s := &cfg.Source
	if s.Kind == "" {
		s.Kind = "hwmon"
	}
	if s.SampleIntervalMillis == 0 {
		s.SampleIntervalMillis = 100
	}
	if s.NotifyIntervalMillis == 0 {
		s.NotifyIntervalMillis = 1000
	}
	if s.ReadRetries == 0 {
		s.ReadRetries = 2
	}
	if s.ModbusTimeoutMillis == 0 {
		s.ModbusTimeoutMillis = 1000
	}
	if s.ModbusUnitID == 0 {
		s.ModbusUnitID = 1
	}

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "data/battery.db"
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = "battery"
	}
	if cfg.MQTT.DeviceID == "" {
		cfg.MQTT.DeviceID = "battery_controller"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = cfg.MQTT.DeviceID
	}
	if cfg.Redis.Key == "" {
		cfg.Redis.Key = "battery"
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "battery."
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}
	if cfg.MainServicePath == "" {
		cfg.MainServicePath = "/etc/systemd/system/battery-controller.service"
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var missing, invalid []string

	c := cfg.Charger
	if c.FloatVoltage == nil {
		missing = append(missing, "charger.float_voltage")
	}
	if c.MinVoltage != nil && c.MaxVoltage != nil && *c.MinVoltage >= *c.MaxVoltage {
		invalid = append(invalid, "charger.min_voltage must be below charger.max_voltage")
	}
	if c.AbsorptionRestartVoltage != nil && c.AbsorptionVoltage == nil {
		invalid = append(invalid, "charger.absorption_restart_voltage requires charger.absorption_voltage")
	}

	m := cfg.Meter
	if m.CapacityAh <= 0 {
		missing = append(missing, "meter.capacity_ah")
	}
	if m.EnergyFullWh <= 0 {
		missing = append(missing, "meter.energy_full_wh")
	}
	if m.FullChargeVoltage <= 0 {
		missing = append(missing, "meter.fullcharge_voltage")
	}
	if m.DischargeVoltage <= 0 {
		missing = append(missing, "meter.discharge_voltage")
	}
	if m.FullChargeVoltage > 0 && m.DischargeVoltage >= m.FullChargeVoltage {
		invalid = append(invalid, "meter.discharge_voltage must be below meter.fullcharge_voltage")
	}

	switch cfg.Source.Kind {
	case "hwmon":
		if cfg.Source.HwmonPath == "" {
			missing = append(missing, "source.hwmon_path")
		}
	case "modbus":
		if cfg.Source.ModbusURL == "" {
			missing = append(missing, "source.modbus_url")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("source.kind %q is not one of hwmon, modbus", cfg.Source.Kind))
	}

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		missing = append(missing, "mqtt.broker")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		missing = append(missing, "redis.addr")
	}

	if len(missing) > 0 {
		panic("Missing required config fields: " + strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		panic("Invalid config: " + strings.Join(invalid, "; "))
	}
}

func intPtr(v int) *int {
	return &v
}
