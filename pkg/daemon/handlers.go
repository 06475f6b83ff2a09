package daemon

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/phstat/phstat/pkg/calibration"
	"github.com/phstat/phstat/pkg/config"
	"github.com/phstat/phstat/pkg/types"
	"github.com/phstat/phstat/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getPHRange(c *gin.Context) {
	t := conf.Thresholds()
	c.IndentedJSON(http.StatusOK, types.PHRange{Min: t.LowEnter, Max: t.HighEnter})
}

// setPHRange is the command path behind `phstat range`: it retunes the
// safe band at runtime and persists it. The new thresholds take effect on
// the next control cycle, which reads them atomically.
func setPHRange(c *gin.Context) {
	var r types.PHRange
	if err := c.BindJSON(&r); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := conf.SetPHRange(r.Min, r.Max); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"min": r.Min,
		"max": r.Max,
	}).Info("pH safe band retuned")

	c.IndentedJSON(http.StatusOK, r)
}

func getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, ctrl.Status())
}

func getTelemetry(c *gin.Context) {
	tel, ok := ctrl.LastTelemetry()
	if !ok {
		c.IndentedJSON(http.StatusNotFound, "no control cycle has completed yet")
		return
	}
	c.IndentedJSON(http.StatusOK, tel)
}

type calibrationResponse struct {
	Points [3]calibration.Point `json:"points"`
	Curve  calibration.Curve    `json:"curve"`
}

func getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, calibrationResponse{
		Points: conf.CalibrationPoints(),
		Curve:  ctrl.Curve(),
	})
}

// postCycle forces one control cycle outside the sampling cadence,
// mainly for commissioning. The cycle still honors the minimum gap.
func postCycle(c *gin.Context) {
	if !ctrl.Cycle() {
		c.IndentedJSON(http.StatusInternalServerError, "control cycle failed")
		return
	}
	tel, _ := ctrl.LastTelemetry()
	c.IndentedJSON(http.StatusOK, tel)
}

// getEvents streams telemetry and dose events as SSE, the dashboard's
// feed.
func getEvents(c *gin.Context) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
