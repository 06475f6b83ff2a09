// Package pump drives the two dosing pumps. The driver is the last line
// of defense for the mutual-exclusion invariant: commanding one pump
// always de-asserts the other, no matter what the caller asked for.
package pump

// Driver controls the base (alkaline) and acid dosing pumps.
type Driver interface {
	// RunBase starts the base pump and forces the acid pump off.
	RunBase() error
	// RunAcid starts the acid pump and forces the base pump off.
	RunAcid() error
	// StopAll de-asserts both pumps.
	StopAll() error
	Close() error
}
