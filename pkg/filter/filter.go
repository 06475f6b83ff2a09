// Package filter smooths raw probe voltages before they reach the
// calibration curve. This is a smoothing filter, not an outlier rejector.
package filter

// MovingAverage is a fixed-capacity ring buffer over the last N samples.
// The reported mean only ever covers slots that have actually been
// written, so the warm-up phase divides by the number of samples seen.
type MovingAverage struct {
	buf  []float64
	next int
	seen int
}

// NewMovingAverage returns a filter over a window of the given size.
// A non-positive window degrades to a pass-through of size 1.
func NewMovingAverage(window int) *MovingAverage {
	if window <= 0 {
		window = 1
	}
	return &MovingAverage{buf: make([]float64, window)}
}

// Add writes a raw sample into the ring, overwriting the oldest slot once
// the window is full, and returns the current mean.
func (m *MovingAverage) Add(v float64) float64 {
	m.buf[m.next] = v
	m.next = (m.next + 1) % len(m.buf)
	if m.seen < len(m.buf) {
		m.seen++
	}
	return m.Last()
}

// Last returns the current mean without consuming a sample. The control
// loop uses this when a sensor read fails: the cycle is evaluated against
// the last known filtered voltage instead of feeding garbage into the
// average. Before any sample has been added it returns 0.
func (m *MovingAverage) Last() float64 {
	if m.seen == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < m.seen; i++ {
		sum += m.buf[i]
	}
	return sum / float64(m.seen)
}

// Seen reports how many samples have been absorbed, capped at the window
// size.
func (m *MovingAverage) Seen() int {
	return m.seen
}

// Window reports the configured capacity.
func (m *MovingAverage) Window() int {
	return len(m.buf)
}
