package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/freistat/pkg/method"
)

func TestNewProgram(t *testing.T) {
	tests := []struct {
		name   string
		kind   method.Kind
		ps     method.Params
		points int
		legs   []leg
	}{
		{
			name: "chronoamperometry",
			kind: method.CA,
			ps: method.Params{
				method.List(method.TagPotentialSteps, 100, 200),
				method.List(method.TagPulseLength, 50, 30),
				method.Scalar(method.TagSamplingRate, 10),
				method.Scalar(method.TagCycle, 2),
			},
			points: 16,
			legs:   []leg{{start: 100, n: 5, dt: 10}, {start: 200, n: 3, dt: 10}},
		},
		{
			name: "linear sweep",
			kind: method.LSV,
			ps: method.Params{
				method.Scalar(method.TagStartPotential, 500),
				method.Scalar(method.TagStopPotential, 900),
				method.Scalar(method.TagStepSize, 2),
				method.Scalar(method.TagScanRate, 200),
				method.Scalar(method.TagCycle, 1),
			},
			points: 201,
			legs:   []leg{{start: 500, step: 2, n: 201, dt: 10}},
		},
		{
			name: "cyclic voltammetry",
			kind: method.CV,
			ps: method.Params{
				method.Scalar(method.TagStartPotential, 0),
				method.Scalar(method.TagLowerPotential, -10),
				method.Scalar(method.TagUpperPotential, 10),
				method.Scalar(method.TagStepSize, 1),
				method.Scalar(method.TagScanRate, 100),
				method.Scalar(method.TagCycle, 1),
			},
			points: 41,
			legs: []leg{
				{start: 0, step: -1, n: 10, dt: 10},
				{start: -10, step: 1, n: 20, dt: 10},
				{start: 10, step: -1, n: 11, dt: 10},
			},
		},
		{
			name: "open circuit",
			kind: method.OCP,
			ps: method.Params{
				method.Scalar(method.TagPulseLength, 30),
				method.Scalar(method.TagSamplingRate, 10),
				method.Scalar(method.TagCycle, 1),
			},
			points: 3,
			legs:   []leg{{n: 3, dt: 10}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := newProgram(tt.kind, tt.ps)
			require.NoError(t, err)
			assert.Equal(t, tt.legs, p.legs)
			assert.Equal(t, tt.points, p.points())
		})
	}
}

func TestNewProgram_Pulsed(t *testing.T) {
	ps := method.Params{
		method.Scalar(method.TagStartPotential, 0),
		method.Scalar(method.TagStopPotential, 100),
		method.Scalar(method.TagDeltaVStaircase, 10),
		method.Scalar(method.TagDeltaVPeak, 25),
		method.List(method.TagPulseLength, 40, 60),
		method.Scalar(method.TagCycle, 1),
	}
	p, err := newProgram(method.DPV, ps)
	require.NoError(t, err)
	assert.Equal(t, []leg{{start: 0, step: 10, n: 11, dt: 100}}, p.legs)
	assert.Equal(t, float32(25), p.pulse)

	_, err = newProgram(method.EIS, nil)
	assert.ErrorIs(t, err, method.ErrMethodUnknown)
}

func TestGenerator_Next(t *testing.T) {
	a := program{kind: method.OCP, cycles: 1, legs: []leg{{n: 2, dt: 5}}}
	b := program{kind: method.CA, cycles: 2, legs: []leg{{start: 7, n: 2, dt: 10}}}
	g := newGenerator(2, a, b)

	type point struct {
		kind      method.Kind
		run       int
		datapoint int
		time      float64
	}
	var got []point
	for {
		d, p, ok := g.next()
		if !ok {
			break
		}
		got = append(got, point{p.kind, d.Run, d.Datapoint, d.Time})
	}

	want := []point{
		{method.OCP, 1, 0, 0}, {method.OCP, 1, 1, 5},
		{method.CA, 1, 0, 10}, {method.CA, 1, 1, 20}, {method.CA, 2, 2, 30}, {method.CA, 2, 3, 40},
		{method.OCP, 1, 0, 50}, {method.OCP, 1, 1, 55},
		{method.CA, 1, 0, 60}, {method.CA, 1, 1, 70}, {method.CA, 2, 2, 80}, {method.CA, 2, 3, 90},
	}
	assert.Equal(t, want, got)

	_, _, ok := g.next()
	assert.False(t, ok, "stays exhausted")
}
