package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/phstat/phstat/pkg/calibration"
	"github.com/phstat/phstat/pkg/pump"
	"github.com/phstat/phstat/pkg/utils/ptr"
)

var defaultFileConfig = &RawFileConfig{
	LowEnter:  ptr.To(6.45),
	LowExit:   ptr.To(6.70),
	HighEnter: ptr.To(7.55),
	HighExit:  ptr.To(7.30),

	BurstMilliseconds:          ptr.To(1200),
	MinGapMilliseconds:         ptr.To(10000),
	SampleIntervalMilliseconds: ptr.To(800),
	FilterWindow:               ptr.To(10),

	// Stock probe calibration: averaged bench measurements in pH 4, 7
	// and 10 buffer solutions.
	Calibration: &[3]calibration.Point{
		{Voltage: 3.60, PH: 4.0},
		{Voltage: 3.006, PH: 7.0},
		{Voltage: 1.466, PH: 10.0},
	},

	SerialPort:   ptr.To("/dev/ttyUSB0"),
	BaudRate:     ptr.To(9600),
	VRef:         ptr.To(5.0),
	ADCFullScale: ptr.To(1023),

	GPIOChip: ptr.To("gpiochip0"),
	PumpPins: ptr.To(pump.DefaultPins),

	AllowNonRootAccess: ptr.To(false),
}

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = defaultFileConfig
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	LowEnter  *float64 `json:"lowEnter,omitempty"`
	LowExit   *float64 `json:"lowExit,omitempty"`
	HighEnter *float64 `json:"highEnter,omitempty"`
	HighExit  *float64 `json:"highExit,omitempty"`

	BurstMilliseconds          *int `json:"burstMs,omitempty"`
	MinGapMilliseconds         *int `json:"minGapMs,omitempty"`
	SampleIntervalMilliseconds *int `json:"sampleIntervalMs,omitempty"`
	FilterWindow               *int `json:"filterWindow,omitempty"`

	Calibration *[3]calibration.Point `json:"calibration,omitempty"`

	SerialPort   *string  `json:"serialPort,omitempty"`
	BaudRate     *int     `json:"baudRate,omitempty"`
	VRef         *float64 `json:"vref,omitempty"`
	ADCFullScale *int     `json:"adcFullScale,omitempty"`

	GPIOChip *string    `json:"gpioChip,omitempty"`
	PumpPins *pump.Pins `json:"pumpPins,omitempty"`

	AllowNonRootAccess *bool `json:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	t := c.Thresholds()

	rawConfig := &RawFileConfig{
		LowEnter:  ptr.To(t.LowEnter),
		LowExit:   ptr.To(t.LowExit),
		HighEnter: ptr.To(t.HighEnter),
		HighExit:  ptr.To(t.HighExit),

		BurstMilliseconds:          ptr.To(int(c.BurstDuration() / time.Millisecond)),
		MinGapMilliseconds:         ptr.To(int(c.MinGap() / time.Millisecond)),
		SampleIntervalMilliseconds: ptr.To(int(c.SampleInterval() / time.Millisecond)),
		FilterWindow:               ptr.To(c.FilterWindow()),

		Calibration: ptr.To(c.CalibrationPoints()),

		SerialPort:   ptr.To(c.SerialPort()),
		BaudRate:     ptr.To(c.BaudRate()),
		VRef:         ptr.To(c.VRef()),
		ADCFullScale: ptr.To(c.ADCFullScale()),

		GPIOChip: ptr.To(c.GPIOChip()),
		PumpPins: ptr.To(c.PumpPins()),

		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

// value resolves a field against the package defaults. Every getter holds
// the read lock for the duration of the lookup.
func value[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

// Thresholds gathers all four thresholds under a single read lock, so the
// control loop never observes a half-applied SetPHRange.
func (f *File) Thresholds() Thresholds {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	t := Thresholds{
		LowEnter:  *defaultFileConfig.LowEnter,
		LowExit:   *defaultFileConfig.LowExit,
		HighEnter: *defaultFileConfig.HighEnter,
		HighExit:  *defaultFileConfig.HighExit,
	}
	if f.c.LowEnter != nil {
		t.LowEnter = *f.c.LowEnter
	}
	if f.c.LowExit != nil {
		t.LowExit = *f.c.LowExit
	}
	if f.c.HighEnter != nil {
		t.HighEnter = *f.c.HighEnter
	}
	if f.c.HighExit != nil {
		t.HighExit = *f.c.HighExit
	}
	return t
}

func (f *File) BurstDuration() time.Duration {
	return time.Duration(value(f, func(c *RawFileConfig) *int { return c.BurstMilliseconds })) * time.Millisecond
}

func (f *File) MinGap() time.Duration {
	return time.Duration(value(f, func(c *RawFileConfig) *int { return c.MinGapMilliseconds })) * time.Millisecond
}

func (f *File) SampleInterval() time.Duration {
	return time.Duration(value(f, func(c *RawFileConfig) *int { return c.SampleIntervalMilliseconds })) * time.Millisecond
}

func (f *File) FilterWindow() int {
	return value(f, func(c *RawFileConfig) *int { return c.FilterWindow })
}

func (f *File) CalibrationPoints() [3]calibration.Point {
	return value(f, func(c *RawFileConfig) *[3]calibration.Point { return c.Calibration })
}

func (f *File) SerialPort() string {
	return value(f, func(c *RawFileConfig) *string { return c.SerialPort })
}

func (f *File) BaudRate() int {
	return value(f, func(c *RawFileConfig) *int { return c.BaudRate })
}

func (f *File) VRef() float64 {
	return value(f, func(c *RawFileConfig) *float64 { return c.VRef })
}

func (f *File) ADCFullScale() int {
	return value(f, func(c *RawFileConfig) *int { return c.ADCFullScale })
}

func (f *File) GPIOChip() string {
	return value(f, func(c *RawFileConfig) *string { return c.GPIOChip })
}

func (f *File) PumpPins() pump.Pins {
	return value(f, func(c *RawFileConfig) *pump.Pins { return c.PumpPins })
}

func (f *File) AllowNonRootAccess() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) SetPHRange(min, max float64) error {
	if f.c == nil {
		panic("config is nil")
	}

	cur := f.Thresholds()

	next := Thresholds{
		LowEnter:  min,
		LowExit:   min + (cur.LowExit - cur.LowEnter),
		HighEnter: max,
		HighExit:  max - (cur.HighEnter - cur.HighExit),
	}
	if err := next.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "pH range [%.2f, %.2f] is not usable", min, max)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.LowEnter = &next.LowEnter
	f.c.LowExit = &next.LowExit
	f.c.HighEnter = &next.HighEnter
	f.c.HighExit = &next.HighExit

	return nil
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	configString := string(b)

	if strings.TrimSpace(configString) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	// A config file with a broken hysteresis band must not reach the
	// control loop.
	t := NewFileFromConfig(&conf, f.filepath).Thresholds()
	if err := t.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid thresholds in %s", f.filepath)
	}
	if w := conf.FilterWindow; w != nil && *w <= 0 {
		return pkgerrors.Errorf("filterWindow must be positive, got %d in %s", *w, f.filepath)
	}

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	t := f.Thresholds()

	return logrus.Fields{
		"lowEnter":           t.LowEnter,
		"lowExit":            t.LowExit,
		"highEnter":          t.HighEnter,
		"highExit":           t.HighExit,
		"burst":              f.BurstDuration(),
		"minGap":             f.MinGap(),
		"sampleInterval":     f.SampleInterval(),
		"filterWindow":       f.FilterWindow(),
		"serialPort":         f.SerialPort(),
		"gpioChip":           f.GPIOChip(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
	}
}
