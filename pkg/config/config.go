package config

import (
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/phstat/phstat/pkg/calibration"
	"github.com/phstat/phstat/pkg/pump"
)

// Thresholds is the hysteresis band configuration. Entry and exit
// thresholds differ per pump so a reading sitting on an entry threshold
// cannot cause on/off chatter.
type Thresholds struct {
	// LowEnter is the pH at or below which a base dose is requested.
	LowEnter float64
	// LowExit is the pH at or above which an active base request is dropped.
	LowExit float64
	// HighEnter is the pH at or above which an acid dose is requested.
	HighEnter float64
	// HighExit is the pH at or below which an active acid request is dropped.
	HighExit float64
}

// Validate enforces the hysteresis ordering: each pump exits through a
// safer threshold than the one that triggered it, and the two bands do
// not overlap.
func (t Thresholds) Validate() error {
	if t.LowEnter >= t.LowExit {
		return pkgerrors.Errorf("lowEnter (%.2f) must be below lowExit (%.2f)", t.LowEnter, t.LowExit)
	}
	if t.HighExit >= t.HighEnter {
		return pkgerrors.Errorf("highExit (%.2f) must be below highEnter (%.2f)", t.HighExit, t.HighEnter)
	}
	if t.LowExit >= t.HighExit {
		return pkgerrors.Errorf("low band exit (%.2f) must be below high band exit (%.2f)", t.LowExit, t.HighExit)
	}
	if t.LowEnter < calibration.MinPH || t.HighEnter > calibration.MaxPH {
		return pkgerrors.Errorf("thresholds must stay within pH [%v, %v]", calibration.MinPH, calibration.MaxPH)
	}
	return nil
}

type Config interface {
	Thresholds() Thresholds
	BurstDuration() time.Duration
	MinGap() time.Duration
	SampleInterval() time.Duration
	FilterWindow() int
	CalibrationPoints() [3]calibration.Point
	SerialPort() string
	BaudRate() int
	VRef() float64
	ADCFullScale() int
	GPIOChip() string
	PumpPins() pump.Pins
	AllowNonRootAccess() bool

	// SetPHRange retunes the safe band at runtime: min becomes the base
	// dose entry threshold, max the acid dose entry threshold. The exit
	// thresholds follow, preserving the current band widths.
	SetPHRange(min, max float64) error
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
