// Package sensor provides access to the pH probe's analog frontend.
package sensor

// Sampler produces one raw probe voltage per call. A failed read is
// reported as an error; the control loop treats it as "no new sample" and
// re-evaluates against the filter's last output.
type Sampler interface {
	ReadVoltage() (float64, error)
	Close() error
}

// SamplerFunc adapts a plain function to the Sampler interface.
type SamplerFunc func() (float64, error)

func (f SamplerFunc) ReadVoltage() (float64, error) { return f() }

func (f SamplerFunc) Close() error { return nil }
