package method

import (
	"errors"
	"fmt"
)

// Numeric bases shared with the firmware documentation.
const (
	CodeSetup   = 11000
	CodeUtility = 17000
)

var (
	ErrAmount        = errors.New("wrong amount of parameters")
	ErrScanRange     = errors.New("scan range exceeded")
	ErrListMismatch  = errors.New("list lengths differ")
	ErrListOverflow  = errors.New("list exceeds experiment buffer")
	ErrParamNotFound = errors.New("parameter named wrong or not found")
	ErrParamBound    = errors.New("parameter out of bounds")
	ErrMethodUnknown = errors.New("method unknown")
)

// Error is a validation failure. Pos is the zero-based parameter position for
// ErrParamNotFound and ErrParamBound, -1 otherwise.
type Error struct {
	Kind Kind
	Pos  int
	Tag  string
	Err  error
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s setup failed (%d): %v at position %d (%s)", e.Kind, e.Code(), e.Err, e.Pos, e.Tag)
	}
	return fmt.Sprintf("%s setup failed (%d): %v", e.Kind, e.Code(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the firmware-compatible numeric error code.
func (e *Error) Code() int {
	switch e.Err {
	case ErrAmount:
		return CodeSetup + 1
	case ErrScanRange:
		return CodeSetup + 2
	case ErrListMismatch:
		return CodeSetup + 3
	case ErrListOverflow:
		return CodeSetup + 4
	case ErrParamNotFound:
		return CodeSetup + 100 + e.Pos
	case ErrParamBound:
		return CodeSetup + 200 + e.Pos
	case ErrMethodUnknown:
		return CodeUtility + 1
	}
	return CodeSetup
}

// Code extracts the numeric code from err, or 0.
func Code(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	if errors.Is(err, ErrMethodUnknown) {
		return CodeUtility + 1
	}
	return 0
}

// Position returns the parameter position carried by err, or -1.
func Position(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Pos
	}
	return -1
}
