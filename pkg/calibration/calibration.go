// Package calibration derives the voltage-to-pH linear map from three
// reference buffer measurements.
package calibration

import (
	"math"

	"github.com/sirupsen/logrus"
)

const (
	// NeutralPH is reported when no usable fit exists. A dead or miswired
	// probe then reads as "no correction needed" instead of driving a pump.
	NeutralPH = 7.0

	// MinPH and MaxPH bound every reported reading.
	MinPH = 0.0
	MaxPH = 14.0

	// degenerateEps guards the least-squares denominator.
	degenerateEps = 1e-6
)

// Point is one reference measurement: the probe voltage observed in a
// buffer solution of known pH.
type Point struct {
	Voltage float64 `json:"voltage"`
	PH      float64 `json:"pH"`
}

// Curve is the fitted linear map pH = Slope*voltage + Intercept.
// It is computed once at startup and read-only afterwards.
type Curve struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// Fit computes an ordinary least-squares regression of pH on voltage over
// the three reference points. If the voltages are degenerate (identical
// enough that the denominator vanishes), it falls back to a flat curve at
// NeutralPH rather than dividing by zero. The fallback is logged so an
// operator can catch a bad calibration table, but it is not an error: the
// controller keeps running on the neutral assumption.
func Fit(points [3]Point) Curve {
	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range points {
		sumX += p.Voltage
		sumY += p.PH
		sumXY += p.Voltage * p.PH
		sumX2 += p.Voltage * p.Voltage
	}

	n := float64(len(points))
	denom := n*sumX2 - sumX*sumX
	if math.Abs(denom) < degenerateEps {
		logrus.WithFields(logrus.Fields{
			"points": points,
			"denom":  denom,
		}).Warn("calibration voltages are degenerate, assuming neutral pH")
		return Curve{Slope: 0, Intercept: NeutralPH}
	}

	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	return Curve{Slope: slope, Intercept: intercept}
}

// PH applies the curve to a filtered voltage. Callers are expected to pass
// the result through ClampPH before acting on it.
func (c Curve) PH(voltage float64) float64 {
	return c.Slope*voltage + c.Intercept
}

// ClampPH bounds a computed reading to the physically meaningful range.
// This is a defensive bound, not a fault signal.
func ClampPH(ph float64) float64 {
	if ph < MinPH {
		return MinPH
	}
	if ph > MaxPH {
		return MaxPH
	}
	return ph
}
