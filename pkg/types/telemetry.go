// Package types holds the wire types shared between the daemon and client
// packages.
package types

import (
	"encoding/json"
	"fmt"
)

// PumpKind identifies which dosing pump a record refers to.
type PumpKind string

const (
	PumpNone   PumpKind = "none"
	PumpBasic  PumpKind = "basic"
	PumpAcidic PumpKind = "acidic"
)

// Pump actions as reported in telemetry.
const (
	ActionOn  = "on"
	ActionOff = "off"
)

// Telemetry is one control cycle's record. The dashboard consumes it as a
// single newline-terminated JSON line, so the encoded form is part of the
// contract: pH carries two decimals, voltage three.
type Telemetry struct {
	PH      float64
	Voltage float64
	Pump    PumpKind
	Action  string
}

// MarshalJSON emits the exact line format the dashboard parses, e.g.
//
//	{"pH":7.00,"voltage":3.006,"pump":"none","action":"off"}
func (t Telemetry) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"pH":%.2f,"voltage":%.3f,"pump":%q,"action":%q}`,
		t.PH, t.Voltage, string(t.Pump), t.Action)), nil
}

// UnmarshalJSON accepts the same shape back, used by the client.
func (t *Telemetry) UnmarshalJSON(b []byte) error {
	var raw struct {
		PH      float64  `json:"pH"`
		Voltage float64  `json:"voltage"`
		Pump    PumpKind `json:"pump"`
		Action  string   `json:"action"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t.PH = raw.PH
	t.Voltage = raw.Voltage
	t.Pump = raw.Pump
	t.Action = raw.Action
	return nil
}

// PHRange is the operator-facing safe band: Min maps to the low (base
// dose) entry threshold, Max to the high (acid dose) entry threshold.
type PHRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}
