package execute

import (
	"errors"
	"fmt"

	"github.com/itohio/freistat/pkg/wire"
)

// CodeExecute is the numeric base of execute errors.
const CodeExecute = 12000

var (
	ErrHandshakeMismatch = errors.New("handshake mismatch")
	ErrAckTimeout        = errors.New("acknowledge timeout")
	ErrTransport         = errors.New("transport failed")
	ErrBusy              = errors.New("machine is not idle")
)

// DeviceError is an error telegram {"E":code} the instrument sent in reply
// to a setup step.
type DeviceError struct {
	Step wire.Command
	Code int
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device rejected %s with code %d", e.Step, e.Code)
}

// Code returns the numeric code of err, or 0. Device errors keep the code the
// instrument reported.
func Code(err error) int {
	var de *DeviceError
	switch {
	case errors.As(err, &de):
		return de.Code
	case errors.Is(err, ErrHandshakeMismatch):
		return CodeExecute + 1
	case errors.Is(err, ErrAckTimeout):
		return CodeExecute + 2
	case errors.Is(err, ErrTransport):
		return CodeExecute + 3
	case errors.Is(err, ErrBusy):
		return CodeExecute + 4
	}
	return 0
}
