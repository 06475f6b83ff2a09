package daemon

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phstat/phstat/pkg/calibration"
	"github.com/phstat/phstat/pkg/events"
	"github.com/phstat/phstat/pkg/types"
)

// Loop runs control cycles at the configured sampling cadence until the
// process exits. The inter-cycle delay is blocking: the cadence is the
// base sampling rate, not a deadline.
func (c *Controller) Loop() {
	for {
		c.Cycle()
		c.sleep(c.conf.SampleInterval())
	}
}

// Cycle executes one full control cycle: sample, filter, calibrate,
// decide, actuate, emit. It returns false when the cycle could not
// complete (no usable sample yet, or the actuator failed). A failed
// decision is not retried; the next cycle simply re-evaluates.
func (c *Controller) Cycle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	raw, err := c.sampler.ReadVoltage()
	var voltage float64
	if err != nil {
		logrus.Errorf("ReadVoltage failed: %v", err)
		if c.avg.Seen() == 0 {
			// Nothing to fall back on yet.
			return false
		}
		// No new sample. Re-evaluate against the filter's last output
		// rather than feeding garbage into the average.
		voltage = c.avg.Last()
	} else {
		voltage = c.avg.Add(raw)
	}

	ph := calibration.ClampPH(c.curve.PH(voltage))

	t := c.conf.Thresholds()
	allowed := c.doseAllowed(now)

	// Hysteresis per pump: an active request exits through a different,
	// safer threshold than the one that triggered it.
	if c.baseActive {
		if ph >= t.LowExit {
			c.baseActive = false
		}
	} else if ph <= t.LowEnter && allowed {
		c.baseActive = true
	}

	if c.acidActive {
		if ph <= t.HighExit {
			c.acidActive = false
		}
	} else if ph >= t.HighEnter && allowed {
		c.acidActive = true
	}

	c.baseActive, c.acidActive = resolveConflict(ph, c.baseActive, c.acidActive)

	tel := types.Telemetry{
		PH:      ph,
		Voltage: voltage,
		Pump:    types.PumpNone,
		Action:  types.ActionOff,
	}

	ok := true
	switch {
	case c.baseActive:
		tel.Pump = types.PumpBasic
		tel.Action = types.ActionOn
		ok = c.burst(types.PumpBasic, ph, now)
		// One-shot burst: the request is cleared regardless of whether
		// the pH has recovered. The next correction has to wait out the
		// minimum gap.
		c.baseActive = false
	case c.acidActive:
		tel.Pump = types.PumpAcidic
		tel.Action = types.ActionOn
		ok = c.burst(types.PumpAcidic, ph, now)
		c.acidActive = false
	}

	c.emit(tel)
	return ok
}

// burst runs one fixed-duration dose. The sleep happens under the
// controller mutex: the loop is intentionally unavailable while the pump
// runs. lastDose is recorded even when the actuator errors, so a flaky
// driver cannot be retriggered every cycle.
func (c *Controller) burst(kind types.PumpKind, ph float64, now time.Time) bool {
	run := c.pumps.RunBase
	if kind == types.PumpAcidic {
		run = c.pumps.RunAcid
	}

	logrus.WithFields(logrus.Fields{
		"pump":  kind,
		"pH":    ph,
		"burst": c.conf.BurstDuration(),
	}).Info("dosing")

	c.lastDose = now
	c.lastDoseKind = kind

	if err := run(); err != nil {
		logrus.Errorf("failed to start %s pump: %v", kind, err)
		_ = c.pumps.StopAll()
		return false
	}

	c.sleep(c.conf.BurstDuration())

	if err := c.pumps.StopAll(); err != nil {
		logrus.Errorf("failed to stop pumps: %v", err)
		return false
	}

	c.hub.Publish(events.DoseFired, events.DoseEvent{
		Kind: string(kind),
		PH:   ph,
		Ts:   now.UnixMilli(),
	})

	return true
}

// emit records the cycle's telemetry, publishes it to subscribers and
// mirrors it as a JSON line for line-oriented consumers.
func (c *Controller) emit(tel types.Telemetry) {
	unchanged := c.cycles > 0 && tel == c.lastTelemetry

	c.lastTelemetry = tel
	c.cycles++

	c.hub.Publish(events.TelemetryCycle, tel)

	if c.out != nil {
		if b, err := tel.MarshalJSON(); err == nil {
			_, _ = c.out.Write(append(b, '\n'))
		}
	}

	fields := logrus.Fields{
		"pH":      tel.PH,
		"voltage": tel.Voltage,
		"pump":    tel.Pump,
		"action":  tel.Action,
	}
	// Keep steady-state logs quiet.
	if unchanged {
		logrus.WithFields(fields).Trace("control cycle")
	} else {
		logrus.WithFields(fields).Debug("control cycle")
	}
}
