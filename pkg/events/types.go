package events

import "encoding/json"

// Event name constants
const (
	TelemetryCycle = "telemetry.cycle"
	DoseFired      = "dose.fired"
)

// Event is a generic SSE event from the daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// DoseEvent is the typed payload for dose.fired.
type DoseEvent struct {
	Kind string  `json:"kind"`
	PH   float64 `json:"pH"`
	Ts   int64   `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.DoseEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Kind, payload.Ts)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
