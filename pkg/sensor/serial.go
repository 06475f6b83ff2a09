package sensor

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Defaults match the stock analog frontend: a 10-bit ADC referenced to 5V,
// streaming one decimal count per line at 9600 baud.
const (
	DefaultBaudRate  = 9600
	DefaultVRef      = 5.0
	DefaultFullScale = 1023
)

// Serial reads newline-delimited raw ADC counts from the probe frontend
// and converts them to volts.
type Serial struct {
	port      io.Closer
	r         *bufio.Reader
	vref      float64
	fullScale float64
}

// OpenSerial opens the frontend on the given port.
func OpenSerial(portName string, baudRate int, vref float64, fullScale int) (*Serial, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", portName)
	}

	logrus.WithFields(logrus.Fields{
		"port":      portName,
		"baudRate":  baudRate,
		"vref":      vref,
		"fullScale": fullScale,
	}).Info("probe frontend connected")

	return newSerial(port, port, vref, fullScale), nil
}

// newSerial wires the line reader separately from the closer so tests can
// drive it from a plain io.Reader.
func newSerial(r io.Reader, closer io.Closer, vref float64, fullScale int) *Serial {
	if vref <= 0 {
		vref = DefaultVRef
	}
	if fullScale <= 0 {
		fullScale = DefaultFullScale
	}
	return &Serial{
		port:      closer,
		r:         bufio.NewReader(r),
		vref:      vref,
		fullScale: float64(fullScale),
	}
}

// ReadVoltage consumes one line from the frontend and returns the
// converted voltage.
func (s *Serial) ReadVoltage() (float64, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to read sample line")
	}

	line = strings.TrimSpace(line)
	raw, err := strconv.Atoi(line)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "malformed sample line %q", line)
	}
	if raw < 0 || float64(raw) > s.fullScale {
		return 0, pkgerrors.Errorf("sample %d outside ADC range [0, %d]", raw, int(s.fullScale))
	}

	return float64(raw) * (s.vref / s.fullScale), nil
}

// Close releases the serial port.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
