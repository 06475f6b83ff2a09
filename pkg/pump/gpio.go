package pump

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/go-gpiocdev"
)

// Pins holds the H-bridge input offsets for both pumps. Each pump is
// driven forward with IN1 high / IN2 low; all-low is stopped.
type Pins struct {
	BaseIn1 int `json:"baseIn1"`
	BaseIn2 int `json:"baseIn2"`
	AcidIn1 int `json:"acidIn1"`
	AcidIn2 int `json:"acidIn2"`
}

// Default wiring, matching the stock controller board.
var DefaultPins = Pins{
	BaseIn1: 6,
	BaseIn2: 7,
	AcidIn1: 8,
	AcidIn2: 9,
}

// GPIO drives the pumps through the kernel GPIO character device.
type GPIO struct {
	baseIn1 *gpiocdev.Line
	baseIn2 *gpiocdev.Line
	acidIn1 *gpiocdev.Line
	acidIn2 *gpiocdev.Line
}

var _ Driver = (*GPIO)(nil)

// OpenGPIO requests all four H-bridge lines as outputs, initially low
// (both pumps stopped).
func OpenGPIO(chip string, pins Pins) (*GPIO, error) {
	g := &GPIO{}

	offsets := []struct {
		name   string
		offset int
		line   **gpiocdev.Line
	}{
		{"baseIn1", pins.BaseIn1, &g.baseIn1},
		{"baseIn2", pins.BaseIn2, &g.baseIn2},
		{"acidIn1", pins.AcidIn1, &g.acidIn1},
		{"acidIn2", pins.AcidIn2, &g.acidIn2},
	}

	for _, o := range offsets {
		l, err := gpiocdev.RequestLine(chip, o.offset,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer("phstat"))
		if err != nil {
			_ = g.Close()
			return nil, pkgerrors.Wrapf(err, "failed to request %s (offset %d) on %s", o.name, o.offset, chip)
		}
		*o.line = l
	}

	logrus.WithFields(logrus.Fields{
		"chip": chip,
		"pins": pins,
	}).Info("pump outputs initialized")

	return g, nil
}

// RunBase asserts the base pump's forward pair. The acid pair is driven
// low first so both pumps are never simultaneously powered, even
// transiently.
func (g *GPIO) RunBase() error {
	logrus.Tracef("RunBase called")

	if err := setLow(g.acidIn1, g.acidIn2, g.baseIn2); err != nil {
		return err
	}
	return g.baseIn1.SetValue(1)
}

// RunAcid asserts the acid pump's forward pair, forcing the base pair low
// first.
func (g *GPIO) RunAcid() error {
	logrus.Tracef("RunAcid called")

	if err := setLow(g.baseIn1, g.baseIn2, g.acidIn2); err != nil {
		return err
	}
	return g.acidIn1.SetValue(1)
}

// StopAll drives every H-bridge input low.
func (g *GPIO) StopAll() error {
	logrus.Tracef("StopAll called")

	return setLow(g.baseIn1, g.baseIn2, g.acidIn1, g.acidIn2)
}

// Close stops both pumps and releases the lines.
func (g *GPIO) Close() error {
	var firstErr error
	if g.baseIn1 != nil && g.baseIn2 != nil && g.acidIn1 != nil && g.acidIn2 != nil {
		firstErr = g.StopAll()
	}
	for _, l := range []*gpiocdev.Line{g.baseIn1, g.baseIn2, g.acidIn1, g.acidIn2} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func setLow(lines ...*gpiocdev.Line) error {
	for _, l := range lines {
		if err := l.SetValue(0); err != nil {
			return pkgerrors.Wrap(err, "failed to drive line low")
		}
	}
	return nil
}
