package method

import (
	"fmt"

	"github.com/itohio/freistat/pkg/wire"
)

// Parameter tags. The set and order per method are fixed by the firmware.
const (
	TagSequenceLength   = "pSL"
	TagBasePotential    = "pBP"
	TagStartPotential   = "pSP"
	TagStopPotential    = "pSTP"
	TagLowerPotential   = "pLP"
	TagUpperPotential   = "pUP"
	TagPotentialSteps   = "pPS"
	TagPulseLength      = "pPL"
	TagSamplingRate     = "pSAR"
	TagSamplingDuration = "pSAD"
	TagStepSize         = "pSZ"
	TagScanRate         = "pSR"
	TagDeltaVStaircase  = "pDVS"
	TagDeltaVPeak       = "pDVP"
	TagCycle            = "pC"
	TagLPTIARtia        = "pLRS"
	TagFixedWEPotential = "pFWP"
	TagMainsFilter      = "pMF"
	TagSinc2            = "pOS2"
	TagSinc3            = "pOS3"

	TagStartFrequency = "pSF"
	TagStopFrequency  = "pEF"
	TagACAmplitude    = "pAC"
	TagDCOffset       = "pDC"
	TagNumPoints      = "pNP"
	TagSweepType      = "pSWT"
)

// Param is one entry of a parameter list. Values is non-nil for list-valued
// entries (potential steps, pulse lengths); Value is used otherwise.
type Param struct {
	Tag    string
	Value  float64
	Values []float64
}

// Scalar builds a scalar entry.
func Scalar(tag string, v float64) Param {
	return Param{Tag: tag, Value: v}
}

// List builds a list-valued entry.
func List(tag string, vs ...float64) Param {
	if vs == nil {
		vs = []float64{}
	}
	return Param{Tag: tag, Values: vs}
}

// IsList reports whether p is list-valued.
func (p Param) IsList() bool { return p.Values != nil }

func (p Param) String() string {
	if p.IsList() {
		return fmt.Sprintf("%s=%v", p.Tag, p.Values)
	}
	return fmt.Sprintf("%s=%g", p.Tag, p.Value)
}

// Params is an ordered parameter list.
type Params []Param

// Index returns the position of tag, or -1.
func (ps Params) Index(tag string) int {
	for i, p := range ps {
		if p.Tag == tag {
			return i
		}
	}
	return -1
}

// Get returns the entry for tag.
func (ps Params) Get(tag string) (Param, bool) {
	i := ps.Index(tag)
	if i < 0 {
		return Param{}, false
	}
	return ps[i], true
}

// Value returns the scalar value of tag.
func (ps Params) Value(tag string) (float64, bool) {
	p, ok := ps.Get(tag)
	if !ok || p.IsList() {
		return 0, false
	}
	return p.Value, true
}

// Set replaces the scalar value of tag in place and reports whether tag exists.
func (ps Params) Set(tag string, v float64) bool {
	i := ps.Index(tag)
	if i < 0 {
		return false
	}
	ps[i].Value = v
	return true
}

// Clone returns a deep copy.
func (ps Params) Clone() Params {
	if ps == nil {
		return nil
	}
	out := make(Params, len(ps))
	for i, p := range ps {
		out[i] = p
		if p.Values != nil {
			out[i].Values = append([]float64{}, p.Values...)
		}
	}
	return out
}

// Tags returns the tags in order.
func (ps Params) Tags() []string {
	tags := make([]string, len(ps))
	for i, p := range ps {
		tags[i] = p.Tag
	}
	return tags
}

// Members converts the list into ExP telegram members.
func (ps Params) Members() []wire.Member {
	members := make([]wire.Member, len(ps))
	for i, p := range ps {
		v := wire.Number(p.Value)
		if p.IsList() {
			v = wire.Numbers(p.Values...)
		}
		members[i] = wire.Member{Key: p.Tag, Value: v}
	}
	return members
}

// FromMembers converts decoded ExP members back into a parameter list.
func FromMembers(members []wire.Member) (Params, error) {
	ps := make(Params, 0, len(members))
	for _, m := range members {
		switch m.Value.Kind() {
		case wire.KindNumber:
			n, _ := m.Value.AsNumber()
			ps = append(ps, Scalar(m.Key, n))
		case wire.KindArray:
			vs := make([]float64, 0, m.Value.Len())
			for _, e := range m.Value.Elems() {
				n, ok := e.AsNumber()
				if !ok {
					return nil, fmt.Errorf("%w: %s holds %s", wire.ErrTelegram, m.Key, e.Kind())
				}
				vs = append(vs, n)
			}
			ps = append(ps, List(m.Key, vs...))
		default:
			return nil, fmt.Errorf("%w: %s holds %s", wire.ErrTelegram, m.Key, m.Value.Kind())
		}
	}
	return ps, nil
}

// Telegram returns the wire experiment for kind and ps.
func Telegram(kind Kind, ps Params) wire.Experiment {
	return wire.Experiment{Type: string(kind), Params: ps.Members()}
}
