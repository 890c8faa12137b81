package method

import "math"

// Physical limits of the instrument, in firmware units (mV, mV/s, ms).
const (
	VoltageRange    = 2050.0 // max potential swing
	VoltageRangeFWP = 2150.0 // max swing with the working electrode held at mid-scale

	MinStepSize         = 0.0
	MaxStepSize         = 100.0
	MinScanRate         = 0.0
	MaxScanRate         = 10000.0
	MinCycle            = 0.0
	MaxCycle            = 2100000000.0
	MinPulseLength      = 0.0
	MaxPulseLength      = 2100000000.0
	MinSamplingRate     = 0.001
	MaxSamplingRate     = 2100000000.0
	MinSamplingDuration = 0.001

	MinFrequency   = 0.0149
	MaxFrequency   = 250e3
	MaxACAmplitude = 800.0
	MaxDCOffset    = 2700.0

	// ExperimentBuffer is the firmware's capacity for list-valued parameters.
	ExperimentBuffer = 50
	// MaxSequenceLength is the most methods one sequence may chain.
	MaxSequenceLength = 35
)

// Row is one reference-table entry. For list rows the bounds apply to every
// element.
type Row struct {
	Tag   string
	Lower float64
	Upper float64
	List  bool
}

func row(tag string, lower, upper float64) Row {
	return Row{Tag: tag, Lower: lower, Upper: upper}
}

func listRow(tag string, lower, upper float64) Row {
	return Row{Tag: tag, Lower: lower, Upper: upper, List: true}
}

// Shared tail rows.
var (
	rowCycle       = row(TagCycle, MinCycle, MaxCycle)
	rowRtia        = row(TagLPTIARtia, RtiaOpen, float64(len(resistors)))
	rowFixedWE     = row(TagFixedWEPotential, 0, 1)
	rowMainsFilter = row(TagMainsFilter, 0, 1)
	rowSinc2       = row(TagSinc2, Sinc2Disabled, float64(len(sinc2Ladder)-1))
	rowSinc3       = row(TagSinc3, Sinc3Disabled, float64(len(sinc3Ladder)-1))
	rowPulseList   = listRow(TagPulseLength, MinPulseLength, MaxPulseLength)
)

// tables holds the static reference tables. Rows whose bounds depend on other
// entries carry placeholder bounds here and are rewritten by derive.
var tables = map[Kind][]Row{
	SEQ: {
		row(TagSequenceLength, 2, MaxSequenceLength),
		rowCycle,
	},
	OCP: {
		row(TagPulseLength, MinPulseLength, MaxPulseLength),
		row(TagSamplingRate, MinSamplingRate, MaxSamplingRate),
		rowCycle,
		rowMainsFilter,
		rowSinc2,
		rowSinc3,
	},
	CA: {
		listRow(TagPotentialSteps, -VoltageRange, VoltageRange),
		rowPulseList,
		row(TagSamplingRate, MinSamplingRate, MaxSamplingRate),
		rowCycle,
		rowRtia,
		rowMainsFilter,
		rowSinc2,
		rowSinc3,
	},
	LSV: {
		row(TagStartPotential, 0, 0),
		row(TagStopPotential, 0, 0),
		row(TagStepSize, MinStepSize, MaxStepSize),
		row(TagScanRate, MinScanRate, MaxScanRate),
		rowCycle,
		rowRtia,
		rowFixedWE,
		rowMainsFilter,
		rowSinc2,
		rowSinc3,
	},
	CV: {
		row(TagStartPotential, 0, 0),
		row(TagLowerPotential, 0, 0),
		row(TagUpperPotential, 0, 0),
		row(TagStepSize, MinStepSize, MaxStepSize),
		row(TagScanRate, MinScanRate, MaxScanRate),
		rowCycle,
		rowRtia,
		rowFixedWE,
		rowMainsFilter,
		rowSinc2,
		rowSinc3,
	},
	NPV: {
		row(TagBasePotential, 0, 0),
		row(TagStartPotential, 0, 0),
		row(TagStopPotential, 0, 0),
		row(TagDeltaVStaircase, 0, 0),
		rowPulseList,
		row(TagSamplingDuration, MinSamplingDuration, 0),
		rowCycle,
		rowRtia,
		rowFixedWE,
		rowMainsFilter,
		rowSinc2,
		rowSinc3,
	},
	DPV: pulseTable(),
	SWV: pulseTable(),
	EIS: {
		row(TagStartFrequency, MinFrequency, MaxFrequency),
		row(TagStopFrequency, MinFrequency, MaxFrequency),
		row(TagACAmplitude, 0, MaxACAmplitude),
		row(TagDCOffset, -MaxDCOffset, MaxDCOffset),
		row(TagNumPoints, 1, math.Inf(1)),
		row(TagSweepType, 0, 1),
		rowMainsFilter,
		rowSinc2,
		rowSinc3,
	},
}

func pulseTable() []Row {
	return []Row{
		row(TagStartPotential, 0, 0),
		row(TagStopPotential, 0, 0),
		row(TagDeltaVStaircase, 0, 0),
		row(TagDeltaVPeak, 0, 0),
		rowPulseList,
		row(TagSamplingDuration, MinSamplingDuration, 0),
		rowCycle,
		rowRtia,
		rowFixedWE,
		rowMainsFilter,
		rowSinc2,
		rowSinc3,
	}
}

// Table returns a copy of the static reference table for kind.
func Table(kind Kind) ([]Row, bool) {
	rows, ok := tables[kind]
	if !ok {
		return nil, false
	}
	return append([]Row(nil), rows...), true
}

// Count returns the number of parameters kind expects, or 0 for unknown kinds.
func Count(kind Kind) int {
	return len(tables[kind])
}

// Tags returns the expected tag order for kind.
func Tags(kind Kind) []string {
	rows := tables[kind]
	tags := make([]string, len(rows))
	for i, r := range rows {
		tags[i] = r.Tag
	}
	return tags
}

// SweepRange returns the maximum potential swing for voltammetric methods.
func SweepRange(fixedWE bool) float64 {
	if fixedWE {
		return VoltageRangeFWP
	}
	return VoltageRange * 2
}

// span is a derived scan range checked after the per-row bounds.
type span struct {
	width float64
	limit float64
}

// Bounds returns the effective reference table for ps: the static rows with
// context-dependent bounds filled in from the submitted values. ps must
// already match the table's tags and shapes.
func Bounds(kind Kind, ps Params) []Row {
	rows, ok := Table(kind)
	if !ok {
		return nil
	}
	derive(kind, rows, ps)
	return rows
}

func derive(kind Kind, rows []Row, ps Params) *span {
	switch kind {
	case CA:
		lo, hi := 0.0, 0.0
		for _, v := range ps[0].Values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		return &span{width: hi - lo, limit: VoltageRange}

	case LSV:
		r := SweepRange(ps[6].Value == 1)
		start, stop := ps[0].Value, ps[1].Value
		rows[0].Lower, rows[0].Upper = stop-r, stop+r
		rows[1].Lower, rows[1].Upper = start-r, start+r
		return &span{width: math.Abs(stop - start), limit: r}

	case CV:
		r := SweepRange(ps[7].Value == 1)
		lower, upper := ps[1].Value, ps[2].Value
		rows[0].Lower, rows[0].Upper = math.Min(lower, upper), math.Max(lower, upper)
		rows[1].Lower, rows[1].Upper = upper-r, upper+r
		rows[2].Lower, rows[2].Upper = lower-r, lower+r
		return &span{width: math.Abs(upper - lower), limit: r}

	case NPV:
		r := SweepRange(ps[8].Value == 1)
		lo := ps[0].Value
		hi := ps[2].Value + ps[3].Value
		rows[0].Lower, rows[0].Upper = -VoltageRangeFWP, ps[1].Value
		rows[1].Lower, rows[1].Upper = lo, hi
		rows[2].Lower, rows[2].Upper = lo, lo+r
		rows[3].Lower, rows[3].Upper = 0, r-hi
		rows[5].Upper = minOf(ps[4].Values, MaxPulseLength)
		return &span{width: hi - lo, limit: r}

	case DPV, SWV:
		r := SweepRange(ps[8].Value == 1)
		lo := ps[0].Value - ps[3].Value
		hi := ps[1].Value + ps[3].Value
		rows[0].Lower, rows[0].Upper = hi-r, hi
		rows[1].Lower, rows[1].Upper = lo, lo+r
		rows[2].Lower, rows[2].Upper = 0, hi-lo
		rows[3].Lower, rows[3].Upper = 0, r-hi
		rows[5].Upper = minOf(ps[4].Values, MaxPulseLength)
		return &span{width: hi - lo, limit: r}
	}
	return nil
}

func minOf(vs []float64, def float64) float64 {
	m := def
	for _, v := range vs {
		m = math.Min(m, v)
	}
	return m
}
