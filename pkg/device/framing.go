package device

import (
	"errors"
	"fmt"
)

// DefaultMaxTelegram bounds a single telegram. The firmware never emits
// more than a few hundred bytes.
const DefaultMaxTelegram = 4096

// ErrTelegramTooLong is returned by Framer.Feed when a telegram grows past
// the limit. The partial telegram is dropped.
var ErrTelegramTooLong = errors.New("telegram exceeds maximum length")

// Framer splits a byte stream into telegrams by counting object braces.
// Bytes between telegrams are skipped. Braces inside strings do not count.
type Framer struct {
	max     int
	buf     []byte
	depth   int
	inStr   bool
	escaped bool
}

// NewFramer creates a framer. max <= 0 selects DefaultMaxTelegram.
func NewFramer(max int) *Framer {
	if max <= 0 {
		max = DefaultMaxTelegram
	}
	return &Framer{max: max}
}

// Feed consumes p and returns every telegram it completed. Telegrams are
// fresh slices. A partial telegram is kept for the next call.
func (f *Framer) Feed(p []byte) ([][]byte, error) {
	var (
		out [][]byte
		err error
	)
	for _, c := range p {
		if f.depth == 0 {
			if c != '{' {
				continue
			}
			f.buf = f.buf[:0]
		}

		f.buf = append(f.buf, c)
		if len(f.buf) > f.max {
			err = fmt.Errorf("%w: %d bytes", ErrTelegramTooLong, len(f.buf))
			f.Reset()
			continue
		}

		switch {
		case f.inStr && f.escaped:
			f.escaped = false
		case f.inStr && c == '\\':
			f.escaped = true
		case f.inStr && c == '"':
			f.inStr = false
		case f.inStr:
		case c == '"':
			f.inStr = true
		case c == '{':
			f.depth++
		case c == '}':
			f.depth--
			if f.depth == 0 {
				out = append(out, append([]byte(nil), f.buf...))
				f.buf = f.buf[:0]
			}
		}
	}
	return out, err
}

// Reset drops any partial telegram.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.depth = 0
	f.inStr = false
	f.escaped = false
}

// Pending reports the number of bytes of an incomplete telegram.
func (f *Framer) Pending() int {
	return len(f.buf)
}
