package meter

// Counters is the running state flushed to volatile storage.
type Counters struct {
	CurrentChargeC int64  `json:"current_charge_c"`
	CurrentEnergyJ int64  `json:"current_energy_j"`
	ChargeInC      uint64 `json:"charge_in_c"`
	ChargeOutC     uint64 `json:"charge_out_c"`
	EnergyInJ      uint64 `json:"energy_in_j"`
	EnergyOutJ     uint64 `json:"energy_out_j"`
	Marks          *Marks `json:"full_charge_marks,omitempty"`
}

// Marks are the cumulative counters captured at the last full charge.
type Marks struct {
	ChargeInC  uint64 `json:"charge_in_c"`
	ChargeOutC uint64 `json:"charge_out_c"`
	EnergyInJ  uint64 `json:"energy_in_j"`
	EnergyOutJ uint64 `json:"energy_out_j"`
}

// LearnedCapacity is what a full charge followed by a full discharge
// measured. Absent values were never learned.
type LearnedCapacity struct {
	ChargeC *int64 `json:"charge_c,omitempty"`
	EnergyJ *int64 `json:"energy_j,omitempty"`
}

func (l LearnedCapacity) Equal(o LearnedCapacity) bool {
	return equalPtr(l.ChargeC, o.ChargeC) && equalPtr(l.EnergyJ, o.EnergyJ)
}

func equalPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// delta returns how far a counter moved since the mark, as a signed value.
func delta(now, mark uint64) int64 {
	return int64(now - mark)
}

// addSigned books a signed increment into the cumulative in or out counter.
func addSigned(d int64, in, out *uint64) {
	if d > 0 {
		*in += uint64(d)
	} else if d < 0 {
		*out += uint64(-d)
	}
}
