package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		exp  Experiment
		want string
	}{
		{
			name: "experiment type",
			cmd:  Type(),
			exp:  Experiment{Type: "CV"},
			want: `{"C":1,"ExT":"CV"}`,
		},
		{
			name: "experiment parameters with list",
			cmd:  Parameters(),
			exp: Experiment{Type: "CA", Params: []Member{
				{Key: "pPS", Value: Numbers(500, -200)},
				{Key: "pPL", Value: Numbers(1000, 2000)},
				{Key: "pSAR", Value: Number(10)},
			}},
			want: `{"C":2,"ExP":{"pPS":[500,-200],"pPL":[1000,2000],"pSAR":10}}`,
		},
		{
			name: "fractional parameter",
			cmd:  Parameters(),
			exp:  Experiment{Params: []Member{{Key: "pSZ", Value: Number(2.1489)}}},
			want: `{"C":2,"ExP":{"pSZ":2.1489}}`,
		},
		{
			name: "start",
			cmd:  Control(ControlStart),
			want: `{"C":3,"ExC":"Start"}`,
		},
		{
			name: "stop",
			cmd:  Control(ControlStop),
			want: `{"C":3,"ExC":"Stop"}`,
		},
		{
			name: "waiting",
			cmd:  Control(ControlWaiting),
			want: `{"C":3,"ExC":"Waiting"}`,
		},
		{
			name: "sequence enable",
			cmd:  Sequence(SequenceEnable),
			want: `{"C":4,"ExS":"SE"}`,
		},
		{
			name: "sequence disable",
			cmd:  Sequence(SequenceDisable),
			want: `{"C":4,"ExS":"SD"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.cmd, tt.exp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncode_Unknown(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{name: "command id", cmd: Command{ID: 9}},
		{name: "control sub-id", cmd: Control(7)},
		{name: "sequence sub-id", cmd: Sequence(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.cmd, Experiment{})
			assert.ErrorIs(t, err, ErrCommandUnknown)
			assert.Equal(t, CodeParser+1, Code(err))
		})
	}
}

func TestEncode_PadsExactly128Bytes(t *testing.T) {
	var hit127, hit128 bool

	for n := 0; n < 160; n++ {
		exp := Experiment{Params: []Member{{Key: "pX", Value: String(strings.Repeat("a", n))}}}
		v, err := Telegram(Parameters(), exp)
		require.NoError(t, err)
		plain := v.String()

		got, err := Encode(Parameters(), exp)
		require.NoError(t, err)

		switch len(plain) {
		case PadLength:
			hit128 = true
			assert.Len(t, got, PadLength+1)
			assert.Equal(t, plain+" ", string(got))
		case PadLength - 1:
			hit127 = true
			assert.Equal(t, plain, string(got))
		default:
			assert.Equal(t, plain, string(got))
		}
	}

	assert.True(t, hit127, "no 127 byte rendering exercised")
	assert.True(t, hit128, "no 128 byte rendering exercised")
}

func TestEncode_PaddedTelegramDecodes(t *testing.T) {
	// pad to exactly 128 bytes with a numeric list
	exp := Experiment{Type: "CA"}
	for i := 0; ; i++ {
		exp.Params = []Member{{Key: "pPL", Value: Numbers(make([]float64, i)...)}}
		v, err := Telegram(Parameters(), exp)
		require.NoError(t, err)
		if len(v.String()) >= PadLength-1 {
			break
		}
	}

	raw, err := Encode(Parameters(), exp)
	require.NoError(t, err)

	v, n, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)

	cmd, got, err := ParseCommand(v)
	require.NoError(t, err)
	assert.Equal(t, Parameters(), cmd)
	assert.Equal(t, exp.Params[0].Value.String(), got.Params[0].Value.String())
}

func TestParseCommand_RoundTrip(t *testing.T) {
	cmds := []struct {
		cmd Command
		exp Experiment
	}{
		{cmd: Type(), exp: Experiment{Type: "SWV"}},
		{cmd: Parameters(), exp: Experiment{Params: []Member{
			{Key: "pSL", Value: Number(3)},
			{Key: "pC", Value: Number(2)},
		}}},
		{cmd: Control(ControlStart)},
		{cmd: Control(ControlStop)},
		{cmd: Control(ControlWaiting)},
		{cmd: Sequence(SequenceEnable)},
		{cmd: Sequence(SequenceDisable)},
	}

	for _, c := range cmds {
		t.Run(c.cmd.String(), func(t *testing.T) {
			raw, err := Encode(c.cmd, c.exp)
			require.NoError(t, err)

			v, _, err := Decode(raw)
			require.NoError(t, err)

			cmd, exp, err := ParseCommand(v)
			require.NoError(t, err)
			assert.Equal(t, c.cmd, cmd)
			assert.Equal(t, c.exp.Type, exp.Type)
			require.Len(t, exp.Params, len(c.exp.Params))
			for i := range exp.Params {
				assert.Equal(t, c.exp.Params[i].Key, exp.Params[i].Key)
				assert.Equal(t, c.exp.Params[i].Value.String(), exp.Params[i].Value.String())
			}
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{name: "data telegram", input: `{"R":1,"M":{"D":0,"V":1}}`, want: ErrTelegram},
		{name: "unknown id", input: `{"C":8,"X":1}`, want: ErrCommandUnknown},
		{name: "wrong second key", input: `{"C":1,"ExP":"CV"}`, want: ErrTelegram},
		{name: "type not string", input: `{"C":1,"ExT":3}`, want: ErrTelegram},
		{name: "params not object", input: `{"C":2,"ExP":[1]}`, want: ErrTelegram},
		{name: "unknown token", input: `{"C":3,"ExC":"Pause"}`, want: ErrCommandUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, err := DecodeString(tt.input)
			require.NoError(t, err)
			_, _, err = ParseCommand(v)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAckID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   CommandID
		wantOK bool
	}{
		{name: "ack", input: `{"A":2}`, want: ExperimentParameters, wantOK: true},
		{name: "echoed command", input: `{"C":1,"ExT":"CA"}`, want: ExperimentType, wantOK: true},
		{name: "data", input: `{"R":1,"M":{}}`, wantOK: false},
		{name: "error", input: `{"E":11001}`, wantOK: false},
		{name: "non numeric", input: `{"C":"1"}`, wantOK: false},
		{name: "empty", input: `{}`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, err := DecodeString(tt.input)
			require.NoError(t, err)
			id, ok := AckID(v)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, id)
			}
		})
	}
}

func TestParseData(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Data
		wantErr bool
	}{
		{
			name:  "open circuit telegram has no current",
			input: `{"R":2,"M":{"D":5,"V":412.5,"T":30}}`,
			want:  Data{Run: 2, Datapoint: 5, Voltage: 412.5, Time: 30, HasTime: true},
		},
		{
			name:    "fields out of order",
			input:   `{"R":2,"M":{"V":412.5,"D":5}}`,
			wantErr: true,
		},
		{
			name:    "unexpected trailing field",
			input:   `{"R":2,"M":{"D":5,"V":1,"C":2,"T":3,"X":4}}`,
			wantErr: true,
		},
		{
			name:    "measurement not object",
			input:   `{"R":2,"M":[1,2]}`,
			wantErr: true,
		},
		{
			name:    "ack telegram",
			input:   `{"C":3,"A":2}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, err := DecodeString(tt.input)
			require.NoError(t, err)
			got, err := ParseData(v)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTelegram)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataTelegram_RoundTrip(t *testing.T) {
	d := Data{Run: 3, Datapoint: 17, Voltage: -120.25, Current: 3.5, HasCurrent: true, Time: 99, HasTime: true}
	raw := DataTelegram(d).String()

	v, n, err := DecodeString(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)

	got, err := ParseData(v)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}
