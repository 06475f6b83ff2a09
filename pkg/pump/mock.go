package pump

import "sync"

// Mock records every command and tracks the simulated pin state, so tests
// can assert the mutual-exclusion invariant over whole scenarios.
type Mock struct {
	mu sync.Mutex

	baseOn bool
	acidOn bool

	// Commands is the ordered list of "base", "acid" and "stop" calls.
	Commands []string

	// bothObserved latches if both pumps were ever on at the same time.
	bothObserved bool

	// RunErr, when set, is returned by RunBase/RunAcid.
	RunErr error
}

var _ Driver = (*Mock)(nil)

func NewMock() *Mock { return &Mock{} }

func (m *Mock) RunBase() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, "base")
	if m.RunErr != nil {
		return m.RunErr
	}
	m.acidOn = false
	m.baseOn = true
	m.check()
	return nil
}

func (m *Mock) RunAcid() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, "acid")
	if m.RunErr != nil {
		return m.RunErr
	}
	m.baseOn = false
	m.acidOn = true
	m.check()
	return nil
}

func (m *Mock) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, "stop")
	m.baseOn = false
	m.acidOn = false
	return nil
}

func (m *Mock) Close() error { return nil }

// Doses counts how many bursts were started for the given pump.
func (m *Mock) Doses(cmd string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.Commands {
		if c == cmd {
			n++
		}
	}
	return n
}

// BothEverOn reports whether the mutual-exclusion invariant was ever
// violated.
func (m *Mock) BothEverOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bothObserved
}

func (m *Mock) check() {
	if m.baseOn && m.acidOn {
		m.bothObserved = true
	}
}
