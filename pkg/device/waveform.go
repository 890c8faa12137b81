package device

import (
	"github.com/chewxy/math32"

	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/wire"
)

// leg is a run of equally spaced points. Potentials are in mV, times in ms,
// float32 as on the instrument.
type leg struct {
	start float32
	step  float32
	n     int
	dt    float32
}

// program is one configured method as the emulated firmware sees it.
type program struct {
	kind   method.Kind
	cycles int
	legs   []leg // one cycle
	pulse  float32
}

// newProgram builds the waveform of a validated parameter list.
func newProgram(kind method.Kind, ps method.Params) (program, error) {
	val := func(tag string) float32 {
		v, _ := ps.Value(tag)
		return float32(v)
	}
	list := func(tag string) []float32 {
		p, _ := ps.Get(tag)
		out := make([]float32, len(p.Values))
		for i, v := range p.Values {
			out[i] = float32(v)
		}
		return out
	}

	p := program{kind: kind, cycles: int(val(method.TagCycle))}
	if p.cycles < 1 {
		p.cycles = 1
	}

	switch kind {
	case method.OCP:
		sar := val(method.TagSamplingRate)
		p.legs = []leg{{n: count(val(method.TagPulseLength), sar), dt: sar}}
	case method.CA:
		sar := val(method.TagSamplingRate)
		lengths := list(method.TagPulseLength)
		for i, e := range list(method.TagPotentialSteps) {
			p.legs = append(p.legs, leg{start: e, n: count(lengths[i], sar), dt: sar})
		}
	case method.LSV:
		dt := interval(val(method.TagStepSize), val(method.TagScanRate))
		p.legs = []leg{ramp(val(method.TagStartPotential), val(method.TagStopPotential), val(method.TagStepSize), dt, true)}
	case method.CV:
		step := val(method.TagStepSize)
		dt := interval(step, val(method.TagScanRate))
		start, lower, upper := val(method.TagStartPotential), val(method.TagLowerPotential), val(method.TagUpperPotential)
		p.legs = []leg{
			ramp(start, lower, step, dt, false),
			ramp(lower, upper, step, dt, false),
			ramp(upper, start, step, dt, true),
		}
	case method.NPV, method.DPV, method.SWV:
		var period float32
		for _, l := range list(method.TagPulseLength) {
			period += l
		}
		p.legs = []leg{ramp(val(method.TagStartPotential), val(method.TagStopPotential), val(method.TagDeltaVStaircase), period, true)}
		if kind != method.NPV {
			p.pulse = val(method.TagDeltaVPeak)
		}
	default:
		return program{}, method.ErrMethodUnknown
	}
	return p, nil
}

func count(duration, interval float32) int {
	if interval <= 0 {
		return 1
	}
	n := int(duration / interval)
	if n < 1 {
		n = 1
	}
	return n
}

// interval returns the time per step in ms for a scan rate in mV/s.
func interval(step, scan float32) float32 {
	if scan <= 0 {
		return 0
	}
	return step / scan * 1e3
}

// ramp walks from a toward b. The end point is emitted only when last is set.
func ramp(a, b, step, dt float32, last bool) leg {
	step = math32.Abs(step)
	if step == 0 {
		return leg{start: a, n: 1, dt: dt}
	}
	n := int(math32.Round(math32.Abs(b-a) / step))
	if last {
		n++
	}
	if b < a {
		step = -step
	}
	return leg{start: a, step: step, n: n, dt: dt}
}

// points is the number of data telegrams one pass over p produces.
func (p program) points() int {
	n := 0
	for _, l := range p.legs {
		n += l.n
	}
	return n * p.cycles
}

// generator walks a list of programs, repeated passes times, one point at a
// time. The datapoint index restarts with every program.
type generator struct {
	programs []program
	passes   int

	pass, prog, cycle, leg, i int
	datapoint                 int
	clock                     float32 // ms since start
}

func newGenerator(passes int, programs ...program) *generator {
	if passes < 1 {
		passes = 1
	}
	return &generator{programs: programs, passes: passes}
}

// next returns the next point and the program it belongs to.
func (g *generator) next() (wire.Data, *program, bool) {
	for g.pass < g.passes && len(g.programs) > 0 {
		p := &g.programs[g.prog]
		switch {
		case g.cycle >= p.cycles:
			g.prog++
			g.cycle, g.leg, g.i, g.datapoint = 0, 0, 0, 0
			if g.prog == len(g.programs) {
				g.prog = 0
				g.pass++
			}
		case g.leg >= len(p.legs):
			g.cycle++
			g.leg, g.i = 0, 0
		case g.i >= p.legs[g.leg].n:
			g.leg++
			g.i = 0
		default:
			l := p.legs[g.leg]
			d := wire.Data{
				Run:       g.cycle + 1,
				Datapoint: g.datapoint,
				Voltage:   float64(l.start + float32(g.i)*l.step),
				Time:      float64(g.clock),
				HasTime:   true,
			}
			g.i++
			g.datapoint++
			g.clock += l.dt
			return d, p, true
		}
	}
	return wire.Data{}, nil, false
}
