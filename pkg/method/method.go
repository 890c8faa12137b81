// Package method holds the per-method reference tables of the FreiStat
// firmware and the validator that checks parameter lists against them. It also
// converts typed experiment descriptors in SI units into the firmware's units
// and hardware codes, quantizing potentials to the DAC grid on the way.
package method

import "fmt"

// Kind is the experiment type tag sent in the ExT telegram.
type Kind string

const (
	UDF Kind = "UDF" // undefined, marks end of a sequence stream
	SEQ Kind = "SEQ"
	OCP Kind = "OCP"
	CA  Kind = "CA"
	LSV Kind = "LSV"
	CV  Kind = "CV"
	NPV Kind = "NPV"
	DPV Kind = "DPV"
	SWV Kind = "SWV"
	EIS Kind = "EIS"
)

// Kinds lists every tag the firmware knows.
var Kinds = []Kind{UDF, SEQ, OCP, CA, LSV, CV, NPV, DPV, SWV, EIS}

// ParseKind converts a tag string into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrMethodUnknown, s)
}

func (k Kind) String() string { return string(k) }

// Sweeping reports whether the method steps a potential over time.
func (k Kind) Sweeping() bool {
	switch k {
	case LSV, CV, NPV, DPV, SWV:
		return true
	}
	return false
}

// Pulsed reports whether the method samples within potential pulses.
func (k Kind) Pulsed() bool {
	switch k {
	case NPV, DPV, SWV:
		return true
	}
	return false
}

// Sequenceable reports whether the method may be chained in a sequence.
func (k Kind) Sequenceable() bool {
	switch k {
	case OCP, CA, LSV, CV, NPV, DPV, SWV:
		return true
	}
	return false
}
