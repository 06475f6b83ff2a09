package client

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/phstat/phstat/pkg/calibration"
	"github.com/phstat/phstat/pkg/config"
	"github.com/phstat/phstat/pkg/types"
)

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetPHRange() (types.PHRange, error) {
	var r types.PHRange

	ret, err := c.Get("/ph-range")
	if err != nil {
		return r, pkgerrors.Wrapf(err, "failed to get pH range")
	}
	if err := json.Unmarshal([]byte(ret), &r); err != nil {
		return r, pkgerrors.Wrapf(err, "failed to unmarshal pH range")
	}
	return r, nil
}

func (c *Client) SetPHRange(min, max float64) (string, error) {
	payload, err := json.Marshal(types.PHRange{Min: min, Max: max})
	if err != nil {
		return "", err
	}
	return c.Put("/ph-range", string(payload))
}

func (c *Client) GetTelemetry() (*types.Telemetry, error) {
	ret, err := c.Get("/telemetry")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get telemetry")
	}

	var tel types.Telemetry
	if err := json.Unmarshal([]byte(ret), &tel); err != nil {
		return nil, fmt.Errorf("failed to unmarshal telemetry: %w", err)
	}

	return &tel, nil
}

// DaemonStatus mirrors the daemon's status snapshot.
type DaemonStatus struct {
	Telemetry    *types.Telemetry  `json:"telemetry,omitempty"`
	Cycles       uint64            `json:"cycles"`
	Curve        calibration.Curve `json:"curve"`
	LastDoseKind types.PumpKind    `json:"lastDoseKind,omitempty"`
	LastDoseAt   *string           `json:"lastDoseAt,omitempty"`
	DoseAllowed  bool              `json:"doseAllowed"`
}

func (c *Client) GetStatus() (*DaemonStatus, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var s DaemonStatus
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}

	return &s, nil
}

// Calibration mirrors the daemon's calibration response.
type Calibration struct {
	Points [3]calibration.Point `json:"points"`
	Curve  calibration.Curve    `json:"curve"`
}

func (c *Client) GetCalibration() (*Calibration, error) {
	ret, err := c.Get("/calibration")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration")
	}

	var cal Calibration
	if err := json.Unmarshal([]byte(ret), &cal); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal calibration")
	}

	return &cal, nil
}

// ForceCycle asks the daemon to run one control cycle now and returns the
// resulting telemetry.
func (c *Client) ForceCycle() (*types.Telemetry, error) {
	ret, err := c.Post("/cycle", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to force a control cycle")
	}

	var tel types.Telemetry
	if err := json.Unmarshal([]byte(ret), &tel); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal telemetry")
	}

	return &tel, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}
