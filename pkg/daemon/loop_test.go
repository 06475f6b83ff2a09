package daemon

import (
	"bytes"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phstat/phstat/pkg/calibration"
	"github.com/phstat/phstat/pkg/config"
	"github.com/phstat/phstat/pkg/events"
	"github.com/phstat/phstat/pkg/pump"
	"github.com/phstat/phstat/pkg/sensor"
	"github.com/phstat/phstat/pkg/types"
	"github.com/phstat/phstat/pkg/utils/ptr"
)

// testCal lies exactly on pH = -5*voltage + 22.03, so scripted voltages
// map to exact pH values.
var testCal = [3]calibration.Point{
	{Voltage: 3.606, PH: 4.0},
	{Voltage: 3.006, PH: 7.0},
	{Voltage: 2.406, PH: 10.0},
}

// voltageFor inverts the test curve.
func voltageFor(ph float64) float64 {
	return (22.03 - ph) / 5.0
}

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func newTestController(t *testing.T, raw *config.RawFileConfig, smp sensor.Sampler, out *bytes.Buffer) (*Controller, *pump.Mock, *fakeClock) {
	t.Helper()

	if raw.Calibration == nil {
		raw.Calibration = &testCal
	}
	conf := config.NewFileFromConfig(raw, "")
	require.NoError(t, conf.Thresholds().Validate())

	drv := pump.NewMock()
	clk := &fakeClock{t: time.Unix(1700000000, 0)}

	var c *Controller
	if out != nil {
		c = NewController(conf, smp, drv, events.NewEventHub(), out)
	} else {
		c = NewController(conf, smp, drv, events.NewEventHub(), nil)
	}
	c.now = func() time.Time { return clk.t }
	c.sleep = func(d time.Duration) { clk.advance(d) }

	return c, drv, clk
}

func TestSteadyNeutralNeverDoses(t *testing.T) {
	var out bytes.Buffer
	c, drv, clk := newTestController(t, &config.RawFileConfig{},
		sensor.NewMockVoltages(3.006), &out)

	for i := 0; i < 12; i++ {
		require.True(t, c.Cycle())

		tel, ok := c.LastTelemetry()
		require.True(t, ok)
		assert.InDelta(t, 7.00, tel.PH, 1e-9)
		assert.InDelta(t, 3.006, tel.Voltage, 1e-9)
		assert.Equal(t, types.PumpNone, tel.Pump)
		assert.Equal(t, types.ActionOff, tel.Action)

		clk.advance(800 * time.Millisecond)
	}

	assert.Empty(t, drv.Commands, "no actuation on a neutral solution")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, `{"pH":7.00,"voltage":3.006,"pump":"none","action":"off"}`, lines[0])
}

func TestLowPHFiresOneBurstThenWaitsOutGap(t *testing.T) {
	c, drv, clk := newTestController(t, &config.RawFileConfig{
		FilterWindow: ptr.To(1),
	}, sensor.NewMockVoltages(voltageFor(6.40)), nil)

	require.True(t, c.Cycle())

	tel, _ := c.LastTelemetry()
	assert.Equal(t, types.PumpBasic, tel.Pump)
	assert.Equal(t, types.ActionOn, tel.Action)
	assert.Equal(t, 1, drv.Doses("base"))
	// The burst runs then stops, in order.
	assert.Equal(t, []string{"base", "stop"}, drv.Commands)

	// The pH stays low, but the minimum gap keeps the dosing rate
	// bounded: 1200ms burst + 11*800ms = 10s, not yet *over* the gap.
	for k := 1; k <= 11; k++ {
		clk.advance(800 * time.Millisecond)
		require.True(t, c.Cycle())

		tel, _ := c.LastTelemetry()
		assert.Equal(t, types.PumpNone, tel.Pump, "cycle %d dosed within the minimum gap", k)
	}
	assert.Equal(t, 1, drv.Doses("base"))

	// One more interval crosses the gap; the next correction may fire.
	clk.advance(800 * time.Millisecond)
	require.True(t, c.Cycle())
	assert.Equal(t, 2, drv.Doses("base"))
}

func TestHysteresisNoChatterAroundEntryThreshold(t *testing.T) {
	low := voltageFor(6.44)
	high := voltageFor(6.46)

	i := 0
	smp := sensor.SamplerFunc(func() (float64, error) {
		v := low
		if i%2 == 1 {
			v = high
		}
		i++
		return v, nil
	})

	c, drv, clk := newTestController(t, &config.RawFileConfig{
		FilterWindow: ptr.To(1),
	}, smp, nil)

	for n := 0; n < 30; n++ {
		require.True(t, c.Cycle())
		clk.advance(800 * time.Millisecond)
	}

	// A signal straddling the entry threshold every cycle must fire at
	// most once per minimum-gap window, never every low cycle.
	assert.Equal(t, 3, drv.Doses("base"))
	assert.Zero(t, drv.Doses("acid"))
	assert.False(t, drv.BothEverOn())
}

func TestMutualExclusionUnderExtremes(t *testing.T) {
	i := 0
	smp := sensor.SamplerFunc(func() (float64, error) {
		v := voltageFor(5.0)
		if i%2 == 1 {
			v = voltageFor(9.5)
		}
		i++
		return v, nil
	})

	c, drv, clk := newTestController(t, &config.RawFileConfig{
		FilterWindow:       ptr.To(1),
		MinGapMilliseconds: ptr.To(0),
	}, smp, nil)

	for n := 0; n < 20; n++ {
		require.True(t, c.Cycle())
		clk.advance(800 * time.Millisecond)
	}

	assert.False(t, drv.BothEverOn(), "both pumps were commanded on")
	assert.Greater(t, drv.Doses("base"), 0)
	assert.Greater(t, drv.Doses("acid"), 0)

	// Every burst must be followed by a stop before the next one starts.
	running := false
	for _, cmd := range drv.Commands {
		switch cmd {
		case "base", "acid":
			assert.False(t, running, "burst started while another was running")
			running = true
		case "stop":
			running = false
		}
	}
}

func TestMinGapAppliesAcrossPumps(t *testing.T) {
	readings := []float64{voltageFor(6.40), voltageFor(8.00), voltageFor(8.00)}
	i := 0
	smp := sensor.SamplerFunc(func() (float64, error) {
		v := readings[i]
		if i < len(readings)-1 {
			i++
		}
		return v, nil
	})

	c, drv, clk := newTestController(t, &config.RawFileConfig{
		FilterWindow: ptr.To(1),
	}, smp, nil)

	require.True(t, c.Cycle())
	assert.Equal(t, 1, drv.Doses("base"))

	// A high reading right after the base burst must not fire the acid
	// pump: the gap applies to bursts of either pump.
	clk.advance(800 * time.Millisecond)
	require.True(t, c.Cycle())
	assert.Zero(t, drv.Doses("acid"))

	// After the gap elapses, the acid correction goes through.
	clk.advance(11 * time.Second)
	require.True(t, c.Cycle())
	assert.Equal(t, 1, drv.Doses("acid"))
	assert.False(t, drv.BothEverOn())
}

func TestResolveConflictKeepsLargerDeviation(t *testing.T) {
	tests := []struct {
		name     string
		ph       float64
		wantBase bool
		wantAcid bool
	}{
		// |6.0-6.5| = 0.5 vs |6.0-7.5| = 1.5: acid deviates more.
		{name: "acid deviates more", ph: 6.0, wantBase: false, wantAcid: true},
		// |7.52-6.5| = 1.02 vs |7.52-7.5| = 0.02: base deviates more.
		{name: "base deviates more", ph: 7.52, wantBase: true, wantAcid: false},
		// Exact tie goes to base.
		{name: "tie", ph: 7.0, wantBase: true, wantAcid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, acid := resolveConflict(tt.ph, true, true)
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, tt.wantAcid, acid)
		})
	}
}

func TestResolveConflictPassesThroughNonConflicts(t *testing.T) {
	base, acid := resolveConflict(6.0, true, false)
	assert.True(t, base)
	assert.False(t, acid)

	base, acid = resolveConflict(6.0, false, false)
	assert.False(t, base)
	assert.False(t, acid)
}

func TestSensorErrorReusesLastFilterOutput(t *testing.T) {
	smp := sensor.NewMock(
		sensor.Reading{Voltage: 3.006},
		sensor.Reading{Err: pkgerrors.New("probe unplugged")},
	)

	c, drv, clk := newTestController(t, &config.RawFileConfig{}, smp, nil)

	require.True(t, c.Cycle())
	clk.advance(800 * time.Millisecond)

	// The failed read must not poison the average; the cycle re-evaluates
	// the last filtered voltage.
	require.True(t, c.Cycle())
	tel, _ := c.LastTelemetry()
	assert.InDelta(t, 7.00, tel.PH, 1e-9)
	assert.InDelta(t, 3.006, tel.Voltage, 1e-9)
	assert.Empty(t, drv.Commands)
}

func TestSensorErrorBeforeAnySampleFailsCycle(t *testing.T) {
	smp := sensor.NewMock(sensor.Reading{Err: pkgerrors.New("probe unplugged")})

	c, _, _ := newTestController(t, &config.RawFileConfig{}, smp, nil)

	assert.False(t, c.Cycle())
	_, ok := c.LastTelemetry()
	assert.False(t, ok, "no telemetry may be emitted without a sample")
}

func TestPumpFailureStillRecordsDoseAttempt(t *testing.T) {
	c, drv, _ := newTestController(t, &config.RawFileConfig{
		FilterWindow: ptr.To(1),
	}, sensor.NewMockVoltages(voltageFor(6.0)), nil)
	drv.RunErr = pkgerrors.New("driver fault")

	assert.False(t, c.Cycle())

	// A flaky driver must not be retriggered every cycle: the attempt
	// consumed the dose budget.
	s := c.Status()
	assert.NotNil(t, s.LastDoseAt)
	assert.False(t, s.DoseAllowed)
}

func TestRefreshRecomputesCurveAndFilter(t *testing.T) {
	raw := &config.RawFileConfig{}
	c, _, _ := newTestController(t, raw, sensor.NewMockVoltages(3.006), nil)

	require.InDelta(t, -5.0, c.Curve().Slope, 1e-9)

	raw.Calibration = &[3]calibration.Point{
		{Voltage: 2.5, PH: 4.0},
		{Voltage: 2.5, PH: 7.0},
		{Voltage: 2.5, PH: 10.0},
	}
	raw.FilterWindow = ptr.To(3)
	c.Refresh()

	assert.Equal(t, 0.0, c.Curve().Slope)
	assert.Equal(t, calibration.NeutralPH, c.Curve().Intercept)
	assert.Equal(t, 3, c.avg.Window())
}

func TestClampKeepsDecisionsOnScale(t *testing.T) {
	// A wild voltage would map far above pH 14; the clamp bounds it and
	// the acid request still fires exactly once.
	c, drv, _ := newTestController(t, &config.RawFileConfig{
		FilterWindow: ptr.To(1),
	}, sensor.NewMockVoltages(0.0), nil)

	require.True(t, c.Cycle())

	tel, _ := c.LastTelemetry()
	assert.Equal(t, 14.0, tel.PH)
	assert.Equal(t, types.PumpAcidic, tel.Pump)
	assert.Equal(t, 1, drv.Doses("acid"))
}
