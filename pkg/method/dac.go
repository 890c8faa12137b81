package method

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// AD5940 DAC geometry. The potential between working and reference electrode
// is the difference of a coarse 6-bit and a fine 12-bit DAC output.
const (
	DACMax = 2400.0 // mV
	DACMin = 200.0  // mV

	LSB6  = (DACMax - DACMin) / 64   // coarse DAC step, mV
	LSB12 = (DACMax - DACMin) / 4095 // fine DAC step, mV

	// WEFixed is the working electrode potential held at mid-scale.
	WEFixed = (DACMax-DACMin)/2 + DACMin
	// WEFree is the working electrode potential when it follows the sweep.
	WEFree = DACMax - DACMin
)

// Notice reports a value that was changed to the nearest one the hardware can
// realise. It is advisory; the run proceeds with Achieved.
type Notice struct {
	Field     string
	Requested float64
	Achieved  float64
}

func (n Notice) String() string {
	return fmt.Sprintf("%s: %g not possible, closest value %g", n.Field, n.Requested, n.Achieved)
}

// LogNotices writes notices as warnings.
func LogNotices(log *zap.Logger, kind Kind, notices []Notice) {
	for _, n := range notices {
		log.Warn("parameter adjusted",
			zap.String("method", string(kind)),
			zap.String("field", n.Field),
			zap.Float64("requested", n.Requested),
			zap.Float64("achieved", n.Achieved),
		)
	}
}

// truncate4 truncates toward zero to four decimals, the precision the
// firmware accepts.
func truncate4(v float64) float64 {
	return math.Trunc(v*10000) / 10000
}

// QuantizePotential returns the potential (mV) closest to req that the DAC pair
// can produce and whether it equals req. The coarse code is fixed by the
// working electrode potential; the fine code is the number of fine steps
// between the coarse sub-potential and req, rounded to nearest. Quantizing an
// achievable value returns it unchanged.
func QuantizePotential(req float64, fixedWE bool) (float64, bool) {
	we := WEFree
	if fixedWE {
		we = WEFixed
	}

	coarse := math.Floor((we - DACMin) / LSB6)
	sub := coarse * LSB6

	fine := math.Floor((sub-req)/LSB12 + 0.5)

	achieved := truncate4(sub - fine*LSB12)
	return achieved, achieved == req
}

// QuantizeStep rounds a step size (mV) to whole fine DAC steps.
func QuantizeStep(step float64) (float64, bool) {
	achieved := truncate4(math.Floor(step/LSB12+0.5) * LSB12)
	return achieved, achieved == step
}

// FixedWE returns fixedWE unless the swing between lower and upper exceeds
// the range available with a fixed working electrode, in which case the
// electrode must follow the sweep.
func FixedWE(lower, upper float64, fixedWE bool) bool {
	if math.Abs(upper-lower) > VoltageRange {
		return false
	}
	return fixedWE
}

func quantize(field string, req float64, fixedWE bool, notices *[]Notice) float64 {
	v, exact := QuantizePotential(req, fixedWE)
	if !exact {
		*notices = append(*notices, Notice{Field: field, Requested: req, Achieved: v})
	}
	return v
}

func quantizeStep(field string, req float64, notices *[]Notice) float64 {
	v, exact := QuantizeStep(req)
	if !exact {
		*notices = append(*notices, Notice{Field: field, Requested: req, Achieved: v})
	}
	return v
}
