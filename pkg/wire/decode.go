package wire

import (
	"bytes"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// maxDepth bounds object/array nesting. Telegrams nest two levels deep.
const maxDepth = 64

// Decode parses one telegram from data. It returns the value tree and the
// number of bytes consumed, including surrounding whitespace. Bytes after the
// first complete value are left unconsumed. On failure the returned Value is
// the zero value and must not be used.
func Decode(data []byte) (Value, int, error) {
	p := &parser{data: data, errPos: -1}
	p.skipSpace()
	v, ok := p.value()
	if !ok {
		return Value{}, 0, &ParseError{Pos: p.errPos, Msg: p.errMsg}
	}
	p.skipSpace()
	return v, p.pos, nil
}

// DecodeString is Decode for string input.
func DecodeString(s string) (Value, int, error) {
	return Decode([]byte(s))
}

type parser struct {
	data  []byte
	pos   int
	depth int

	// furthest failure seen; productions backtrack, the deepest error wins
	errPos int
	errMsg string
}

func (p *parser) fail(pos int, msg string) {
	if pos >= p.errPos {
		p.errPos = pos
		p.errMsg = msg
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.data) {
		return 0
	}
	return p.data[p.pos]
}

func (p *parser) consume(c byte) bool {
	if p.peek() == c && p.pos < len(p.data) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// value tries the productions in a fixed order; the first that succeeds wins.
func (p *parser) value() (Value, bool) {
	if v, ok := p.object(); ok {
		return v, true
	}
	if s, ok := p.string(); ok {
		return String(s), true
	}
	if v, ok := p.number(); ok {
		return v, true
	}
	if v, ok := p.array(); ok {
		return v, true
	}
	return p.literal()
}

func (p *parser) enter(start int) bool {
	p.depth++
	if p.depth > maxDepth {
		p.fail(start, "nesting too deep")
		return false
	}
	return true
}

func (p *parser) object() (Value, bool) {
	start := p.pos
	if !p.consume('{') {
		p.fail(start, "expected '{'")
		return Value{}, false
	}
	defer func() { p.depth-- }()
	if !p.enter(start) {
		p.pos = start
		return Value{}, false
	}

	p.skipSpace()
	if p.consume('}') {
		return Object(), true
	}

	var members []Member
	for {
		p.skipSpace()
		key, ok := p.string()
		if !ok {
			p.pos = start
			return Value{}, false
		}
		p.skipSpace()
		if !p.consume(':') {
			p.fail(p.pos, "expected ':' after object key")
			p.pos = start
			return Value{}, false
		}
		p.skipSpace()
		v, ok := p.value()
		if !ok {
			p.pos = start
			return Value{}, false
		}
		members = append(members, Member{Key: key, Value: v})

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume('}') {
			return Object(members...), true
		}
		p.fail(p.pos, "expected ',' or '}' in object")
		p.pos = start
		return Value{}, false
	}
}

func (p *parser) array() (Value, bool) {
	start := p.pos
	if !p.consume('[') {
		p.fail(start, "expected '['")
		return Value{}, false
	}
	defer func() { p.depth-- }()
	if !p.enter(start) {
		p.pos = start
		return Value{}, false
	}

	p.skipSpace()
	if p.consume(']') {
		return Array(), true
	}

	var elems []Value
	for {
		p.skipSpace()
		v, ok := p.value()
		if !ok {
			p.pos = start
			return Value{}, false
		}
		elems = append(elems, v)

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(']') {
			return Array(elems...), true
		}
		p.fail(p.pos, "expected ',' or ']' in array")
		p.pos = start
		return Value{}, false
	}
}

func (p *parser) string() (string, bool) {
	start := p.pos
	if !p.consume('"') {
		p.fail(start, "expected string")
		return "", false
	}

	var buf []byte
	for {
		if p.pos >= len(p.data) {
			p.fail(p.pos, "unterminated string")
			p.pos = start
			return "", false
		}
		c := p.data[p.pos]
		switch {
		case c == '"':
			p.pos++
			return string(buf), true
		case c == '\\':
			p.pos++
			var ok bool
			if buf, ok = p.escape(buf); !ok {
				p.pos = start
				return "", false
			}
		case c < 0x20:
			p.fail(p.pos, "control character in string")
			p.pos = start
			return "", false
		default:
			buf = append(buf, c)
			p.pos++
		}
	}
}

func (p *parser) escape(buf []byte) ([]byte, bool) {
	if p.pos >= len(p.data) {
		p.fail(p.pos, "unterminated escape")
		return buf, false
	}
	c := p.data[p.pos]
	p.pos++
	switch c {
	case '"', '\\', '/':
		return append(buf, c), true
	case 'b':
		return append(buf, '\b'), true
	case 'f':
		return append(buf, '\f'), true
	case 'n':
		return append(buf, '\n'), true
	case 'r':
		return append(buf, '\r'), true
	case 't':
		return append(buf, '\t'), true
	case 'u':
		r, ok := p.hex4()
		if !ok {
			return buf, false
		}
		if utf16.IsSurrogate(r) {
			// a high surrogate must be followed by an escaped low surrogate
			save := p.pos
			if p.consume('\\') && p.consume('u') {
				if r2, ok := p.hex4(); ok {
					if dec := utf16.DecodeRune(r, r2); dec != utf8.RuneError {
						return utf8.AppendRune(buf, dec), true
					}
				}
			}
			p.pos = save
			r = utf8.RuneError
		}
		return utf8.AppendRune(buf, r), true
	}
	p.fail(p.pos-1, "invalid escape character")
	return buf, false
}

func (p *parser) hex4() (rune, bool) {
	if p.pos+4 > len(p.data) {
		p.fail(p.pos, "short unicode escape")
		return 0, false
	}
	n, err := strconv.ParseUint(string(p.data[p.pos:p.pos+4]), 16, 32)
	if err != nil {
		p.fail(p.pos, "invalid unicode escape")
		return 0, false
	}
	p.pos += 4
	return rune(n), true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (p *parser) digits() int {
	n := 0
	for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
		p.pos++
		n++
	}
	return n
}

func (p *parser) number() (Value, bool) {
	start := p.pos
	p.consume('-')

	switch c := p.peek(); {
	case c == '0' && p.pos < len(p.data):
		// no redundant leading zeros: "01" stops after the 0
		p.pos++
	case c >= '1' && c <= '9':
		p.digits()
	default:
		p.fail(p.pos, "expected value")
		p.pos = start
		return Value{}, false
	}

	if p.consume('.') {
		if p.digits() == 0 {
			p.fail(p.pos, "expected digit after decimal point")
			p.pos = start
			return Value{}, false
		}
	}

	if c := p.peek(); c == 'e' || c == 'E' {
		p.pos++
		if !p.consume('+') {
			p.consume('-')
		}
		if p.digits() == 0 {
			p.fail(p.pos, "expected digit in exponent")
			p.pos = start
			return Value{}, false
		}
	}

	n, err := strconv.ParseFloat(string(p.data[start:p.pos]), 64)
	if err != nil {
		p.fail(start, "number out of range")
		p.pos = start
		return Value{}, false
	}
	return Number(n), true
}

var (
	litTrue  = []byte("true")
	litFalse = []byte("false")
	litNull  = []byte("null")
)

func (p *parser) literal() (Value, bool) {
	rest := p.data[p.pos:]
	switch {
	case bytes.HasPrefix(rest, litTrue):
		p.pos += len(litTrue)
		return Bool(true), true
	case bytes.HasPrefix(rest, litFalse):
		p.pos += len(litFalse)
		return Bool(false), true
	case bytes.HasPrefix(rest, litNull):
		p.pos += len(litNull)
		return Null(), true
	}
	p.fail(p.pos, "expected value")
	return Value{}, false
}
