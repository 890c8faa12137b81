package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramer_Feed(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "single telegram",
			chunks: []string{`{"A":1}`},
			want:   []string{`{"A":1}`},
		},
		{
			name:   "nested object",
			chunks: []string{`{"R":1,"M":{"D":0,"V":1.5,"C":0.1,"T":3}}`},
			want:   []string{`{"R":1,"M":{"D":0,"V":1.5,"C":0.1,"T":3}}`},
		},
		{
			name:   "split across reads",
			chunks: []string{`{"R":1,"M":{"D"`, `:0,"V":1}`, `}`},
			want:   []string{`{"R":1,"M":{"D":0,"V":1}}`},
		},
		{
			name:   "two in one read",
			chunks: []string{`{"A":1}{"A":2}`},
			want:   []string{`{"A":1}`, `{"A":2}`},
		},
		{
			name:   "noise between telegrams",
			chunks: []string{"\r\n  garbage {\"A\":3}\n\n"},
			want:   []string{`{"A":3}`},
		},
		{
			name:   "braces inside strings",
			chunks: []string{`{"ExC":"a}b{c"}`},
			want:   []string{`{"ExC":"a}b{c"}`},
		},
		{
			name:   "escaped quote inside string",
			chunks: []string{`{"s":"x\"}"}`},
			want:   []string{`{"s":"x\"}"}`},
		},
		{
			name:   "incomplete",
			chunks: []string{`{"A":`},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(0)
			var got []string
			for _, c := range tt.chunks {
				out, err := f.Feed([]byte(c))
				require.NoError(t, err)
				for _, o := range out {
					got = append(got, string(o))
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFramer_Pending(t *testing.T) {
	f := NewFramer(0)
	_, err := f.Feed([]byte(`xx{"A":`))
	require.NoError(t, err)
	assert.Equal(t, 5, f.Pending())

	f.Reset()
	assert.Equal(t, 0, f.Pending())

	out, err := f.Feed([]byte(`1}{"A":2}`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, `{"A":2}`, string(out[0]))
}

func TestFramer_TooLong(t *testing.T) {
	f := NewFramer(8)
	out, err := f.Feed([]byte(`{"abcdefgh":1}{"A":1}`))
	assert.ErrorIs(t, err, ErrTelegramTooLong)
	require.Len(t, out, 1)
	assert.Equal(t, `{"A":1}`, string(out[0]))
}

func TestFramer_ReturnsCopies(t *testing.T) {
	f := NewFramer(0)
	buf := []byte(`{"A":1}`)
	out, err := f.Feed(buf)
	require.NoError(t, err)
	buf[1] = 'X'
	assert.Equal(t, `{"A":1}`, string(out[0]))
}
