package sensor

const (
	ChargeLevel      = "charge_level"
	EnergyLevel      = "energy_level"
	ChargeIn         = "charge_in"
	ChargeOut        = "charge_out"
	EnergyIn         = "energy_in"
	EnergyOut        = "energy_out"
	ChargeRemaining  = "charge_remaining"
	EnergyRemaining  = "energy_remaining"
	ChargeCalculated = "charge_calculated"
	EnergyCalculated = "energy_calculated"
	TimeToFull       = "time_to_full"
	TimeToEmpty      = "time_to_empty"
	ReadsPerSecond   = "reads_per_second"
	VoltageTarget    = "voltage_target"
	ChargePhase      = "charge_phase"
	BatteryVoltage   = "battery_voltage"
	BatteryCurrent   = "battery_current"
)

type Metric struct {
	ID          string
	Name        string
	Unit        string
	DeviceClass string
	StateClass  string
	Decimals    int
	Text        bool
}

var Metrics = []Metric{
	{ID: ChargeLevel, Name: "Charge level", Unit: "%", DeviceClass: "battery", StateClass: "measurement"},
	{ID: EnergyLevel, Name: "Energy level", Unit: "%", DeviceClass: "battery", StateClass: "measurement"},
	{ID: ChargeIn, Name: "Charge in", Unit: "Ah", StateClass: "total_increasing", Decimals: 2},
	{ID: ChargeOut, Name: "Charge out", Unit: "Ah", StateClass: "total_increasing", Decimals: 2},
	{ID: EnergyIn, Name: "Energy in", Unit: "Wh", DeviceClass: "energy", StateClass: "total_increasing", Decimals: 1},
	{ID: EnergyOut, Name: "Energy out", Unit: "Wh", DeviceClass: "energy", StateClass: "total_increasing", Decimals: 1},
	{ID: ChargeRemaining, Name: "Charge remaining", Unit: "Ah", StateClass: "measurement", Decimals: 2},
	{ID: EnergyRemaining, Name: "Energy remaining", Unit: "Wh", DeviceClass: "energy_storage", StateClass: "measurement", Decimals: 1},
	{ID: ChargeCalculated, Name: "Learned charge capacity", Unit: "Ah", StateClass: "measurement", Decimals: 2},
	{ID: EnergyCalculated, Name: "Learned energy capacity", Unit: "Wh", DeviceClass: "energy_storage", StateClass: "measurement", Decimals: 1},
	{ID: TimeToFull, Name: "Time to full", Unit: "min", DeviceClass: "duration", StateClass: "measurement"},
	{ID: TimeToEmpty, Name: "Time to empty", Unit: "min", DeviceClass: "duration", StateClass: "measurement"},
	{ID: ReadsPerSecond, Name: "Sensor reads per second", Unit: "Hz", StateClass: "measurement", Decimals: 1},
	{ID: VoltageTarget, Name: "Charge voltage target", Unit: "V", DeviceClass: "voltage", StateClass: "measurement", Decimals: 2},
	{ID: BatteryVoltage, Name: "Battery voltage", Unit: "V", DeviceClass: "voltage", StateClass: "measurement", Decimals: 3},
	{ID: BatteryCurrent, Name: "Battery current", Unit: "A", DeviceClass: "current", StateClass: "measurement", Decimals: 3},
	{ID: ChargePhase, Name: "Charge phase", Text: true},
}

func Lookup(id string) (Metric, bool) {
	for _, m := range Metrics {
		if m.ID == id {
			return m, true
		}
	}
	return Metric{}, false
}
