package model

import "time"

type ChargePhase string

const (
	PhaseInitial            ChargePhase = "initial"
	PhaseBeforeAbsorption   ChargePhase = "before_absorption"
	PhaseAbsorption         ChargePhase = "absorption"
	PhaseBeforeFloat        ChargePhase = "before_float"
	PhaseFloat              ChargePhase = "float"
	PhaseBeforeEqualization ChargePhase = "before_equalization"
	PhaseEqualization       ChargePhase = "equalization"
	PhaseBeforeError        ChargePhase = "before_error"
	PhaseError              ChargePhase = "error"
)

// Transitional phases publish their outputs once and hand off to their
// steady-state counterpart.
func (p ChargePhase) Transitional() bool {
	switch p {
	case PhaseInitial, PhaseBeforeAbsorption, PhaseBeforeFloat, PhaseBeforeEqualization, PhaseBeforeError:
		return true
	}
	return false
}

type MeterState string

const (
	MeterNotInitialized MeterState = "not_initialized"
	MeterSetup          MeterState = "setup"
	MeterIdle           MeterState = "idle"
)

type Status struct {
	Error   bool   `json:"error"`
	Warning bool   `json:"warning"`
	Message string `json:"message,omitempty"`
}

type EventKind string

const (
	EventFullCharge        EventKind = "full_charge"
	EventFullDischarge     EventKind = "full_discharge"
	EventCapacityLearned   EventKind = "capacity_learned"
	EventCapacityRejected  EventKind = "capacity_rejected"
	EventEnergyLearned     EventKind = "energy_learned"
	EventEnergyRejected    EventKind = "energy_rejected"
	EventChargerError      EventKind = "charger_error"
	EventChargerRecovered  EventKind = "charger_recovered"
	EventEqualizationStart EventKind = "equalization_start"
)

type Event struct {
	ID    int64     `json:"id"`
	Kind  EventKind `json:"kind"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

type SlotRecord struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChargerSnapshot struct {
	Phase     ChargePhase `json:"phase"`
	Target    float64     `json:"target_voltage"`
	Voltage   *float64    `json:"voltage"`
	Current   *float64    `json:"current"`
	Status    Status      `json:"status"`
	Timers    []string    `json:"running_timers"`
	Failed    bool        `json:"failed"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type MeterSnapshot struct {
	State           MeterState `json:"state"`
	LevelPercent    int64      `json:"level_percent"`
	EnergyPercent   int64      `json:"energy_percent"`
	RemainingAh     float64    `json:"remaining_ah"`
	RemainingWh     float64    `json:"remaining_wh"`
	ChargeInAh      float64    `json:"charge_in_ah"`
	ChargeOutAh     float64    `json:"charge_out_ah"`
	EnergyInWh      float64    `json:"energy_in_wh"`
	EnergyOutWh     float64    `json:"energy_out_wh"`
	LearnedAh       *float64   `json:"learned_capacity_ah"`
	LearnedWh       *float64   `json:"learned_capacity_wh"`
	TimeToFullMin   *float64   `json:"time_to_full_min"`
	TimeToEmptyMin  *float64   `json:"time_to_empty_min"`
	FullyCharged    bool       `json:"fully_charged"`
	FullyDischarged bool       `json:"fully_discharged"`
	Status          Status     `json:"status"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
