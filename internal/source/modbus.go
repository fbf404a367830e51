package source

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simonvetter/modbus"

	"github.com/thatsimonsguy/battery-controller/internal/config"
)

type registerReader interface {
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
	Close() error
}

// Modbus reads voltage and current from holding registers, each paired
// with a signed power-of-ten scale factor register.
type Modbus struct {
	client registerReader
	cfg    config.Source
}

func NewModbus(cfg config.Source) (*Modbus, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     cfg.ModbusURL,
		Timeout: time.Duration(cfg.ModbusTimeoutMillis) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("create modbus client: %w", err)
	}
	if cfg.ModbusUnitID > 0 {
		if err := client.SetUnitId(cfg.ModbusUnitID); err != nil {
			return nil, fmt.Errorf("set modbus unit id: %w", err)
		}
	}
	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("open modbus connection to %s: %w", cfg.ModbusURL, err)
	}
	log.Info().Str("url", cfg.ModbusURL).Uint8("unit", cfg.ModbusUnitID).Msg("Connected to modbus meter")
	return &Modbus{client: client, cfg: cfg}, nil
}

func (m *Modbus) Read() (float64, float64, error) {
	voltage, err := m.scaled(m.cfg.VoltageRegister, m.cfg.VoltageScaleRegister)
	if err != nil {
		return 0, 0, fmt.Errorf("read voltage: %w", err)
	}
	current, err := m.scaled(m.cfg.CurrentRegister, m.cfg.CurrentScaleRegister)
	if err != nil {
		return 0, 0, fmt.Errorf("read current: %w", err)
	}
	if m.cfg.InvertCurrent {
		current = -current
	}
	return voltage, current, nil
}

func (m *Modbus) scaled(addr, sfAddr uint16) (float64, error) {
	raw, err := m.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	sf, err := m.client.ReadRegister(sfAddr, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	return applySF(int16(raw), sf), nil
}

func (m *Modbus) Close() error {
	return m.client.Close()
}

func applySF(value int16, sf uint16) float64 {
	return float64(value) * math.Pow(10, float64(int16(sf)))
}
