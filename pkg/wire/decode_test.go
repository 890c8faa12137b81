package wire

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cmpValue compares value trees through their exported accessors.
var cmpValue = cmp.Comparer(func(a, b Value) bool { return a.String() == b.String() && a.Kind() == b.Kind() })

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     Value
		consumed int
	}{
		{
			name:     "empty object",
			input:    "{}",
			want:     Object(),
			consumed: 2,
		},
		{
			name:     "empty object with whitespace",
			input:    "{ \n }",
			want:     Object(),
			consumed: 5,
		},
		{
			name:  "ack telegram",
			input: `{"C":1,"A":0}`,
			want: Object(
				Member{Key: "C", Value: Number(1)},
				Member{Key: "A", Value: Number(0)},
			),
			consumed: 13,
		},
		{
			name:  "member order is preserved",
			input: `{"z":1,"a":2,"m":3}`,
			want: Object(
				Member{Key: "z", Value: Number(1)},
				Member{Key: "a", Value: Number(2)},
				Member{Key: "m", Value: Number(3)},
			),
			consumed: 19,
		},
		{
			name:     "array of numbers",
			input:    `[1, -2.5, 3e2, 0.125E-1]`,
			want:     Numbers(1, -2.5, 300, 0.0125),
			consumed: 24,
		},
		{
			name:     "nested arrays",
			input:    `[[],[true,false,null]]`,
			want:     Array(Array(), Array(Bool(true), Bool(false), Null())),
			consumed: 22,
		},
		{
			name:     "string escapes",
			input:    `"a\"b\\c\/d\b\f\n\r\t"`,
			want:     String("a\"b\\c/d\b\f\n\r\t"),
			consumed: 22,
		},
		{
			name:     "unicode escape",
			input:    `"\u00b5A"`,
			want:     String("\u00b5A"),
			consumed: 9,
		},
		{
			name:     "surrogate pair",
			input:    `"\ud83d\ude00"`,
			want:     String("\U0001F600"),
			consumed: 14,
		},
		{
			name:     "zero",
			input:    "0",
			want:     Number(0),
			consumed: 1,
		},
		{
			name:     "negative zero fraction",
			input:    "-0.5",
			want:     Number(-0.5),
			consumed: 4,
		},
		{
			name:     "leading zero stops number",
			input:    "01",
			want:     Number(0),
			consumed: 1,
		},
		{
			name:     "trailing whitespace consumed",
			input:    "true \r\n",
			want:     Bool(true),
			consumed: 7,
		},
		{
			name:     "second telegram left unconsumed",
			input:    `{"C":3}{"C":4}`,
			want:     Object(Member{Key: "C", Value: Number(3)}),
			consumed: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := DecodeString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.consumed, n)
			if diff := cmp.Diff(tt.want, got, cmpValue); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
	}{
		{name: "empty input", input: "", pos: 0},
		{name: "unterminated object", input: `{"C":1`, pos: 6},
		{name: "missing colon", input: `{"C" 1}`, pos: 5},
		{name: "missing value", input: `{"C":}`, pos: 5},
		{name: "bare key", input: `{C:1}`, pos: 1},
		{name: "trailing comma", input: `{"C":1,}`, pos: 7},
		{name: "bad escape", input: `"\x"`, pos: 2},
		{name: "control char in string", input: "\"a\nb\"", pos: 2},
		{name: "fraction without digits", input: "1.", pos: 2},
		{name: "exponent without digits", input: "1e+", pos: 3},
		{name: "lone minus", input: "-", pos: 1},
		{name: "unterminated array", input: "[1,2", pos: 4},
		{name: "unknown literal", input: "nul", pos: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := DecodeString(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
			assert.Equal(t, 0, n)
			assert.Equal(t, KindNull, got.Kind())

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.pos, pe.Pos)
			assert.Equal(t, CodeParser+2, Code(err))
		})
	}
}

func TestDecode_DepthLimit(t *testing.T) {
	deep := strings.Repeat("[", maxDepth+1) + strings.Repeat("]", maxDepth+1)
	_, _, err := DecodeString(deep)
	assert.ErrorIs(t, err, ErrParse)

	ok := strings.Repeat("[", maxDepth) + strings.Repeat("]", maxDepth)
	_, n, err := DecodeString(ok)
	require.NoError(t, err)
	assert.Equal(t, len(ok), n)
}

func TestDecode_MeasurementTelegram(t *testing.T) {
	input := `{"R":1,"M":{"D":136,"V":-59.902320,"C":-0.5461352,"T":1520.5}}`

	v, n, err := DecodeString(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n, "whole telegram must be consumed")
	require.Equal(t, KindObject, v.Kind())
	require.Equal(t, 2, v.Len())

	m, ok := v.Member(1)
	require.True(t, ok)
	assert.Equal(t, "M", m.Key)
	require.Equal(t, KindObject, m.Value.Kind())

	keys := make([]string, 0, m.Value.Len())
	for _, f := range m.Value.Members() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"D", "V", "C", "T"}, keys)

	d, err := ParseData(v)
	require.NoError(t, err)
	assert.Equal(t, Data{
		Run:        1,
		Datapoint:  136,
		Voltage:    -59.902320,
		Current:    -0.5461352,
		HasCurrent: true,
		Time:       1520.5,
		HasTime:    true,
	}, d)
}

func TestDecode_ShortMeasurementTelegram(t *testing.T) {
	input := `{"R":1,"M":{"D":136,"V":-59.902320,"C":-0.5461352}}`

	v, n, err := DecodeString(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)

	m, ok := v.Member(1)
	require.True(t, ok)
	assert.Equal(t, 3, m.Value.Len())
	assert.Equal(t, "R", v.FirstKey())
	assert.True(t, IsData(v))
	assert.False(t, IsCommand(v))
}

func TestValue_Accessors(t *testing.T) {
	v := Object(
		Member{Key: "a", Value: Numbers(1, 2)},
		Member{Key: "b", Value: String("x")},
	)

	arr, ok := v.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 2, arr.Len())
	n, ok := arr.Index(1).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 2.0, n)
	assert.True(t, arr.Index(5).IsNull())

	_, ok = v.Lookup("missing")
	assert.False(t, ok)

	_, ok = v.Member(2)
	assert.False(t, ok)
	assert.Equal(t, `{"a":[1,2],"b":"x"}`, v.String())
	assert.Equal(t, "", String("x").FirstKey())
}
