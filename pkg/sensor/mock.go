package sensor

import "sync"

// Reading is one scripted mock result.
type Reading struct {
	Voltage float64
	Err     error
}

// Mock replays a scripted sequence of readings. Once the script runs out
// it keeps returning the last entry, so steady-state tests can script a
// single value.
type Mock struct {
	mu     sync.Mutex
	script []Reading
	i      int
}

var _ Sampler = (*Mock)(nil)

// NewMock returns a mock that replays the given readings in order.
func NewMock(script ...Reading) *Mock {
	return &Mock{script: script}
}

// NewMockVoltages is a convenience for error-free scripts.
func NewMockVoltages(voltages ...float64) *Mock {
	script := make([]Reading, len(voltages))
	for i, v := range voltages {
		script[i] = Reading{Voltage: v}
	}
	return NewMock(script...)
}

// Append adds readings to the end of the script.
func (m *Mock) Append(script ...Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, script...)
}

func (m *Mock) ReadVoltage() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.script) == 0 {
		return 0, nil
	}
	r := m.script[m.i]
	if m.i < len(m.script)-1 {
		m.i++
	}
	return r.Voltage, r.Err
}

func (m *Mock) Close() error { return nil }
