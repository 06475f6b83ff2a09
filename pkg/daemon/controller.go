package daemon

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phstat/phstat/pkg/calibration"
	"github.com/phstat/phstat/pkg/config"
	"github.com/phstat/phstat/pkg/events"
	"github.com/phstat/phstat/pkg/filter"
	"github.com/phstat/phstat/pkg/pump"
	"github.com/phstat/phstat/pkg/sensor"
	"github.com/phstat/phstat/pkg/types"
)

// Dose target centers, used only to break the (defensively handled) case
// of both pumps being requested at once: the request further from its
// center wins.
const (
	baseTargetPH = 6.5
	acidTargetPH = 7.5
)

// Controller owns the sample -> filter -> calibrate -> dose cycle. All of
// its state, including the actuator commands issued during a burst, is
// mutated inside a single mutex-guarded critical section: the HTTP layer
// can force a cycle or retune thresholds while the loop runs, and both
// the mutual-exclusion and the minimum-gap invariants depend on atomic
// read-then-decide-then-write over lastDose and the active flags.
type Controller struct {
	mu sync.Mutex

	conf    config.Config
	sampler sensor.Sampler
	pumps   pump.Driver
	hub     *events.EventHub

	// out mirrors each telemetry record as one JSON line, the format the
	// dashboard's line parser expects.
	out io.Writer

	avg   *filter.MovingAverage
	curve calibration.Curve

	baseActive bool
	acidActive bool

	lastDose     time.Time
	lastDoseKind types.PumpKind

	lastTelemetry types.Telemetry
	cycles        uint64

	// Injected clocks so tests run without wall time. The burst sleep is
	// deliberately taken while holding mu: the loop is unavailable for
	// the full burst, which guarantees the pump really ran that long.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewController fits the calibration curve and prints it for operator
// verification, then returns a controller ready to cycle.
func NewController(conf config.Config, smp sensor.Sampler, drv pump.Driver, hub *events.EventHub, out io.Writer) *Controller {
	c := &Controller{
		conf:    conf,
		sampler: smp,
		pumps:   drv,
		hub:     hub,
		out:     out,
		avg:     filter.NewMovingAverage(conf.FilterWindow()),
		now:     time.Now,
		sleep:   time.Sleep,
	}
	c.fitCurve()
	return c
}

func (c *Controller) fitCurve() {
	points := c.conf.CalibrationPoints()
	c.curve = calibration.Fit(points)

	logrus.WithFields(logrus.Fields{
		"points":    points,
		"slope":     c.curve.Slope,
		"intercept": c.curve.Intercept,
	}).Info("pH calibration computed, verify with pH = slope*voltage + intercept")
}

// Refresh re-derives everything that is computed from config, called
// after a SIGHUP reload. A changed filter window resets the warm-up.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fitCurve()
	if w := c.conf.FilterWindow(); w != c.avg.Window() {
		logrus.WithFields(logrus.Fields{
			"window": w,
		}).Info("filter window changed, restarting warm-up")
		c.avg = filter.NewMovingAverage(w)
	}
}

// Curve returns the active calibration curve.
func (c *Controller) Curve() calibration.Curve {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curve
}

// LastTelemetry returns the most recent cycle's record, if any cycle has
// completed.
func (c *Controller) LastTelemetry() (types.Telemetry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTelemetry, c.cycles > 0
}

// Status is the daemon state snapshot served to the client.
type Status struct {
	Telemetry    *types.Telemetry  `json:"telemetry,omitempty"`
	Cycles       uint64            `json:"cycles"`
	Curve        calibration.Curve `json:"curve"`
	LastDoseKind types.PumpKind    `json:"lastDoseKind,omitempty"`
	LastDoseAt   *time.Time        `json:"lastDoseAt,omitempty"`
	DoseAllowed  bool              `json:"doseAllowed"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Cycles:      c.cycles,
		Curve:       c.curve,
		DoseAllowed: c.doseAllowed(c.now()),
	}
	if c.cycles > 0 {
		tel := c.lastTelemetry
		s.Telemetry = &tel
	}
	if !c.lastDose.IsZero() {
		t := c.lastDose
		s.LastDoseAt = &t
		s.LastDoseKind = c.lastDoseKind
	}
	return s
}

// doseAllowed enforces the minimum spacing between bursts of either pump.
// Vacuously true before the first dose. Callers hold mu.
func (c *Controller) doseAllowed(now time.Time) bool {
	return c.lastDose.IsZero() || now.Sub(c.lastDose) > c.conf.MinGap()
}

// resolveConflict applies the tie-break when both pumps end up requested:
// keep the request whose reading deviates more from that pump's target
// center, cancel the other. Within one evaluation the bands are disjoint,
// so this can only trigger through residual state, but it is what keeps
// the at-most-one-pump invariant unconditional.
func resolveConflict(ph float64, base, acid bool) (bool, bool) {
	if !base || !acid {
		return base, acid
	}

	devBase := math.Abs(ph - baseTargetPH)
	devAcid := math.Abs(ph - acidTargetPH)

	logrus.WithFields(logrus.Fields{
		"pH":      ph,
		"devBase": devBase,
		"devAcid": devAcid,
	}).Warn("both pumps requested, keeping the larger deviation")

	if devBase >= devAcid {
		return true, false
	}
	return false, true
}
