package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWarmUpDividesBySamplesSeen(t *testing.T) {
	m := NewMovingAverage(10)

	assert.Equal(t, 3.2, m.Add(3.2), "first sample must come back exactly")
	assert.Equal(t, 1, m.Seen())

	assert.InDelta(t, 3.3, m.Add(3.4), 1e-12)
	assert.Equal(t, 2, m.Seen())
}

func TestFullWindowOverwritesOldest(t *testing.T) {
	m := NewMovingAverage(3)

	m.Add(1)
	m.Add(2)
	m.Add(3)
	// 1 falls out of the window.
	assert.InDelta(t, 3.0, m.Add(4), 1e-12)
	assert.Equal(t, 3, m.Seen())
}

func TestOutputStaysWithinWindowBounds(t *testing.T) {
	m := NewMovingAverage(5)

	seq := []float64{3.0, 5.0, 1.0, 4.4, 2.2, 0.5, 9.9, 3.3, 3.3, 7.1, 0.1}
	var window []float64
	for _, v := range seq {
		window = append(window, v)
		if len(window) > 5 {
			window = window[1:]
		}

		got := m.Add(v)

		lo, hi := window[0], window[0]
		for _, w := range window {
			if w < lo {
				lo = w
			}
			if w > hi {
				hi = w
			}
		}
		assert.GreaterOrEqual(t, got, lo)
		assert.LessOrEqual(t, got, hi)
	}
}

func TestLastDoesNotConsume(t *testing.T) {
	m := NewMovingAverage(4)
	assert.Equal(t, 0.0, m.Last(), "empty filter reports zero")

	m.Add(2.0)
	assert.Equal(t, 2.0, m.Last())
	assert.Equal(t, 1, m.Seen(), "Last must not advance the ring")
}

func TestNonPositiveWindowDegradesToPassThrough(t *testing.T) {
	m := NewMovingAverage(0)
	assert.Equal(t, 1, m.Window())
	m.Add(1.5)
	assert.Equal(t, 2.5, m.Add(2.5))
}
