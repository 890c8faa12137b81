package wire

import (
	"errors"
	"fmt"
)

// CodeParser is the numeric base of codec errors.
const CodeParser = 13000

var (
	// ErrCommandUnknown is returned for command ids outside the protocol.
	ErrCommandUnknown = errors.New("wire: command id undefined")
	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("wire: parse error")
	// ErrTelegram is returned when a decoded tree does not have the expected
	// telegram shape.
	ErrTelegram = errors.New("wire: unexpected telegram layout")
)

// Code returns the numeric code of a codec error, or 0.
func Code(err error) int {
	var pe *ParseError
	switch {
	case errors.As(err, &pe):
		return pe.Code()
	case errors.Is(err, ErrCommandUnknown):
		return CodeParser + 1
	case errors.Is(err, ErrTelegram):
		return CodeParser + 3
	}
	return 0
}

// ParseError reports the byte offset where decoding failed.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("wire: parse error at byte %d: %s", e.Pos, e.Msg)
}

// Code returns the numeric error code.
func (e *ParseError) Code() int { return CodeParser + 2 }

// Is matches ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }
