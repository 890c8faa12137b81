package method

import "math"

// RtiaOpen is the LPTIA code for an open feedback path.
const RtiaOpen = 0

// resistors holds the LPTIA feedback resistor values (Ω) for codes 1..26.
var resistors = []float64{
	200, 1e3, 2e3, 3e3, 4e3, 6e3, 8e3, 10e3, 12e3, 16e3, 20e3, 24e3, 30e3,
	32e3, 40e3, 48e3, 64e3, 85e3, 96e3, 100e3, 120e3, 128e3, 160e3, 196e3,
	256e3, 512e3,
}

// Sinc filter codes meaning "filter disabled".
const (
	Sinc2Disabled = -1
	Sinc3Disabled = -1
)

// sinc2Ladder holds the Sinc2 oversampling rates for codes 0..11.
var sinc2Ladder = []float64{22, 44, 89, 178, 267, 533, 640, 667, 800, 889, 1067, 1333}

// sinc3Ladder holds the Sinc3 oversampling rates for codes 0..2. The firmware
// numbers them from the highest rate down.
var sinc3Ladder = []float64{5, 4, 2}

// ResistorValue returns the resistance (Ω) of an LPTIA code; 0 for open or
// unknown codes.
func ResistorValue(code int) float64 {
	if code < 1 || code > len(resistors) {
		return 0
	}
	return resistors[code-1]
}

// ResistorCode maps a current range (A) to the LPTIA code whose resistor is
// closest to 0.9 V / range. A non-positive range leaves the path open.
func ResistorCode(currentRange float64) (int, *Notice) {
	if currentRange <= 0 || math.IsNaN(currentRange) {
		return RtiaOpen, &Notice{Field: TagLPTIARtia, Requested: currentRange, Achieved: RtiaOpen}
	}
	micro := currentRange * 1e6
	want := 0.9 / micro * 1e6
	i := nearest(resistors, want)
	if math.Abs(resistors[i]-want) > want*1e-9 {
		return i + 1, &Notice{Field: TagLPTIARtia, Requested: want, Achieved: resistors[i]}
	}
	return i + 1, nil
}

// Sinc2Value returns the oversampling rate of a Sinc2 code, 1 when disabled.
func Sinc2Value(code int) float64 {
	if code < 0 || code >= len(sinc2Ladder) {
		return 1
	}
	return sinc2Ladder[code]
}

// Sinc3Value returns the oversampling rate of a Sinc3 code, 1 when disabled.
func Sinc3Value(code int) float64 {
	if code < 0 || code >= len(sinc3Ladder) {
		return 1
	}
	return sinc3Ladder[code]
}

// Sinc2Code maps an oversampling rate to the nearest Sinc2 code. Zero
// disables the filter; negative rates are taken by magnitude.
func Sinc2Code(rate int) (int, *Notice) {
	return sincCode(TagSinc2, rate, sinc2Ladder)
}

// Sinc3Code maps an oversampling rate to the nearest Sinc3 code. Zero
// disables the filter; negative rates are taken by magnitude.
func Sinc3Code(rate int) (int, *Notice) {
	return sincCode(TagSinc3, rate, sinc3Ladder)
}

func sincCode(tag string, rate int, ladder []float64) (int, *Notice) {
	if rate == 0 {
		return -1, nil
	}
	want := math.Abs(float64(rate))
	i := nearest(ladder, want)
	if ladder[i] != float64(rate) {
		return i, &Notice{Field: tag, Requested: float64(rate), Achieved: ladder[i]}
	}
	return i, nil
}

// nearest returns the index of the ladder value closest to want. A request
// exactly between two values goes to the higher one, whatever the ladder
// order.
func nearest(ladder []float64, want float64) int {
	best := 0
	for i, v := range ladder {
		d, bd := math.Abs(v-want), math.Abs(ladder[best]-want)
		if d < bd || (d == bd && v > ladder[best]) {
			best = i
		}
	}
	return best
}
