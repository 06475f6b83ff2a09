package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phstat/phstat/pkg/config"
	"github.com/phstat/phstat/pkg/events"
	"github.com/phstat/phstat/pkg/pump"
	"github.com/phstat/phstat/pkg/sensor"
	"github.com/phstat/phstat/pkg/types"
	"github.com/phstat/phstat/pkg/utils/ptr"
)

// setupTestDaemon wires the package globals the handlers read, the same
// way Run does, but against mocks and a temp config file.
func setupTestDaemon(t *testing.T, smp sensor.Sampler) (*gin.Engine, *pump.Mock, string) {
	t.Helper()

	configFile := filepath.Join(t.TempDir(), "phstat.json")
	conf = config.NewFileFromConfig(&config.RawFileConfig{
		Calibration:  &testCal,
		FilterWindow: ptr.To(1),
	}, configFile)

	drv := pump.NewMock()
	hub = events.NewEventHub()
	ctrl = NewController(conf, smp, drv, hub, nil)

	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	ctrl.now = func() time.Time { return clk.t }
	ctrl.sleep = func(d time.Duration) { clk.advance(d) }

	return setupRoutes(), drv, configFile
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	router.ServeHTTP(w, req)
	return w
}

func TestGetTelemetryBeforeFirstCycle(t *testing.T) {
	router, _, _ := setupTestDaemon(t, sensor.NewMockVoltages(3.006))

	w := do(router, "GET", "/telemetry", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestForceCycleThenGetTelemetry(t *testing.T) {
	router, drv, _ := setupTestDaemon(t, sensor.NewMockVoltages(3.006))

	w := do(router, "POST", "/cycle", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, "GET", "/telemetry", "")
	require.Equal(t, http.StatusOK, w.Code)

	var tel types.Telemetry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tel))
	assert.InDelta(t, 7.00, tel.PH, 1e-9)
	assert.Equal(t, types.PumpNone, tel.Pump)
	assert.Empty(t, drv.Commands)
}

func TestGetAndSetPHRange(t *testing.T) {
	router, _, configFile := setupTestDaemon(t, sensor.NewMockVoltages(3.006))

	w := do(router, "GET", "/ph-range", "")
	require.Equal(t, http.StatusOK, w.Code)

	var r types.PHRange
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	assert.Equal(t, 6.45, r.Min)
	assert.Equal(t, 7.55, r.Max)

	w = do(router, "PUT", "/ph-range", `{"min":6.0,"max":8.0}`)
	require.Equal(t, http.StatusOK, w.Code)

	th := conf.Thresholds()
	assert.InDelta(t, 6.0, th.LowEnter, 1e-12)
	assert.InDelta(t, 8.0, th.HighEnter, 1e-12)

	// The retune is persisted.
	_, err := os.Stat(configFile)
	assert.NoError(t, err)
	saved, err := config.NewFile(configFile)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, saved.Thresholds().LowEnter, 1e-12)
}

func TestSetPHRangeValidation(t *testing.T) {
	router, _, _ := setupTestDaemon(t, sensor.NewMockVoltages(3.006))

	tests := []struct {
		name string
		body string
	}{
		{name: "inverted", body: `{"min":8.0,"max":6.0}`},
		{name: "off the scale", body: `{"min":-1.0,"max":7.55}`},
		{name: "too narrow", body: `{"min":7.0,"max":7.1}`},
		{name: "not json", body: `6.0 8.0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, "PUT", "/ph-range", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	// Rejected requests must leave the active band untouched.
	th := conf.Thresholds()
	assert.Equal(t, 6.45, th.LowEnter)
	assert.Equal(t, 7.55, th.HighEnter)
}

func TestGetStatus(t *testing.T) {
	router, _, _ := setupTestDaemon(t, sensor.NewMockVoltages(voltageFor(6.40)))

	w := do(router, "POST", "/cycle", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, "GET", "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var s Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, uint64(1), s.Cycles)
	require.NotNil(t, s.Telemetry)
	assert.Equal(t, types.PumpBasic, s.Telemetry.Pump)
	assert.NotNil(t, s.LastDoseAt)
	assert.False(t, s.DoseAllowed)
}

func TestGetCalibration(t *testing.T) {
	router, _, _ := setupTestDaemon(t, sensor.NewMockVoltages(3.006))

	w := do(router, "GET", "/calibration", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp calibrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testCal, resp.Points)
	assert.InDelta(t, -5.0, resp.Curve.Slope, 1e-9)
}

func TestGetConfig(t *testing.T) {
	router, _, _ := setupTestDaemon(t, sensor.NewMockVoltages(3.006))

	w := do(router, "GET", "/config", "")
	require.Equal(t, http.StatusOK, w.Code)

	var raw config.RawFileConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.NotNil(t, raw.LowEnter)
	assert.Equal(t, 6.45, *raw.LowEnter)
	require.NotNil(t, raw.FilterWindow)
	assert.Equal(t, 1, *raw.FilterWindow)
}

func TestEventsStreamCarriesTelemetry(t *testing.T) {
	router, _, _ := setupTestDaemon(t, sensor.NewMockVoltages(3.006))

	// Subscribe via the hub directly to keep the test free of SSE framing;
	// the /events handler forwards these same events verbatim.
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	w := do(router, "POST", "/cycle", "")
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case ev := <-ch:
		assert.Equal(t, events.TelemetryCycle, ev.Name)
		tel, err := events.DecodeAs[types.Telemetry](ev)
		require.NoError(t, err)
		assert.InDelta(t, 7.00, tel.PH, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("telemetry event never arrived")
	}
}
