// Package optimizer tunes the ADC filter chain and the timing parameters of a
// validated parameter list so that the number of raw samples the instrument
// buffers per reported point stays within its sample buffer.
package optimizer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/device"
	"github.com/itohio/freistat/pkg/method"
)

const (
	// ADCRate is the AD5940 conversion rate in Hz.
	ADCRate = 800000.0
	// SampleBuffer is the number of raw samples the firmware averages per point.
	SampleBuffer = 250
	// ShortSampleBuffer applies below ShortInterval, where per-point overhead on
	// the instrument is no longer negligible.
	ShortSampleBuffer = 25
	// ShortInterval is in seconds.
	ShortInterval = 3.5e-3
)

// minProduct is the decimation needed at the short interval boundary. It is
// a floor for every interval so that the chosen decimation never drops when
// the interval grows past the boundary.
var minProduct = ShortInterval * ADCRate / ShortSampleBuffer

// Minimum time between reported points in seconds per link.
type limits struct {
	CA  float64
	CV  float64
	DPV float64
}

var minIntervals = map[device.Link]limits{
	device.LinkSerial: {CA: 3.0e-3, CV: 2.875e-3, DPV: 3e-3},
	device.LinkWLAN:   {CA: 3.0e-3, CV: 2.875e-3, DPV: 3e-3},
}

// MinInterval returns the shortest supported interval (s) of kind on link.
func MinInterval(link device.Link, kind method.Kind) float64 {
	l, ok := minIntervals[link]
	if !ok {
		l = minIntervals[device.LinkSerial]
	}
	switch {
	case kind == method.CA || kind == method.OCP:
		return l.CA
	case kind == method.LSV || kind == method.CV:
		return l.CV
	case kind.Pulsed():
		return l.DPV
	}
	return 0
}

var (
	ErrMissingSinc2            = errors.New("sinc2 oversampling rate missing")
	ErrMissingSinc3            = errors.New("sinc3 oversampling rate missing")
	ErrMissingSamplingRate     = errors.New("sampling rate missing")
	ErrMissingSamplingDuration = errors.New("sampling duration missing")
	ErrMissingStepSize         = errors.New("step size missing")
	ErrMissingScanRate         = errors.New("scan rate missing")
)

var codes = map[error]int{
	method.ErrMethodUnknown:    method.CodeUtility + 1,
	ErrMissingSinc2:            method.CodeUtility + 2,
	ErrMissingSinc3:            method.CodeUtility + 3,
	ErrMissingSamplingRate:     method.CodeUtility + 4,
	ErrMissingSamplingDuration: method.CodeUtility + 5,
	ErrMissingStepSize:         method.CodeUtility + 6,
	ErrMissingScanRate:         method.CodeUtility + 7,
}

// Code returns the numeric code of an optimizer error, or 0.
func Code(err error) int {
	for e, c := range codes {
		if errors.Is(err, e) {
			return c
		}
	}
	return 0
}

// Advisory reports one parameter the optimizer changed.
type Advisory struct {
	Field string
	Old   float64
	New   float64
}

func (a Advisory) String() string {
	return fmt.Sprintf("%s: %g is not optimal, changed to %g", a.Field, a.Old, a.New)
}

// LogAdvisories writes advisories as warnings.
func LogAdvisories(log *zap.Logger, kind method.Kind, advs []Advisory) {
	for _, a := range advs {
		log.Warn("optimizer changed parameter",
			zap.String("method", string(kind)),
			zap.String("field", a.Field),
			zap.Float64("old", a.Old),
			zap.Float64("new", a.New),
		)
	}
}

// rung is one filter setting.
type rung struct {
	sinc2, sinc3 int // codes
	product      float64
}

// ladder holds every (sinc2, sinc3) combination ordered by decimation. Among
// equal products the higher Sinc3 rate comes first.
var ladder = buildLadder()

func buildLadder() []rung {
	sinc3 := []int{method.Sinc3Disabled, 2, 1, 0} // 1, 2, 4, 5
	var rs []rung
	for s2 := 0; s2 <= 11; s2++ {
		for _, s3 := range sinc3 {
			rs = append(rs, rung{
				sinc2:   s2,
				sinc3:   s3,
				product: method.Sinc2Value(s2) * method.Sinc3Value(s3),
			})
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].product != rs[j].product {
			return rs[i].product < rs[j].product
		}
		return method.Sinc3Value(rs[i].sinc3) > method.Sinc3Value(rs[j].sinc3)
	})
	return rs
}

// state is the scratch data of one Optimize call.
type state struct {
	kind     method.Kind
	ps       method.Params
	sinc2    int
	sinc3    int
	interval float64 // s
	advs     []Advisory
}

func (s *state) set(tag string, v float64) {
	old, _ := s.ps.Value(tag)
	if old == v {
		return
	}
	s.ps.Set(tag, v)
	s.advs = append(s.advs, Advisory{Field: tag, Old: old, New: v})
}

// Optimize returns a copy of ps tuned for link together with every change it
// made. ps must be a validated list for kind. On error the caller keeps ps.
func Optimize(kind method.Kind, ps method.Params, link device.Link) (method.Params, []Advisory, error) {
	switch kind {
	case method.OCP:
		return ps.Clone(), nil, nil
	case method.CA, method.LSV, method.CV, method.NPV, method.DPV, method.SWV:
	default:
		return nil, nil, fmt.Errorf("optimize %s: %w", kind, method.ErrMethodUnknown)
	}

	s := &state{kind: kind, ps: ps.Clone()}
	s2, ok := s.ps.Value(method.TagSinc2)
	if !ok {
		return nil, nil, fmt.Errorf("optimize %s: %w", kind, ErrMissingSinc2)
	}
	s3, ok := s.ps.Value(method.TagSinc3)
	if !ok {
		return nil, nil, fmt.Errorf("optimize %s: %w", kind, ErrMissingSinc3)
	}
	s.sinc2, s.sinc3 = int(s2), int(s3)

	var err error
	switch {
	case kind == method.CA:
		err = s.samplingRate(link)
	case kind.Pulsed():
		err = s.samplingDuration(link)
	default:
		err = s.stepSize(link)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("optimize %s: %w", kind, err)
	}

	s.filter()
	return s.ps, s.advs, nil
}

func (s *state) samplingRate(link device.Link) error {
	rate, ok := s.ps.Value(method.TagSamplingRate)
	if !ok || rate == 0 {
		return ErrMissingSamplingRate
	}
	if lo := MinInterval(link, s.kind) * 1e3; rate < lo {
		s.set(method.TagSamplingRate, lo)
		rate = lo
	}
	s.interval = rate * 1e-3
	return nil
}

// samplingDuration raises the sampling duration to the link minimum unless
// that would exceed the shortest pulse.
func (s *state) samplingDuration(link device.Link) error {
	dur, ok := s.ps.Value(method.TagSamplingDuration)
	if !ok || dur == 0 {
		return ErrMissingSamplingDuration
	}
	lo := MinInterval(link, s.kind) * 1e3
	if pl, ok := s.ps.Get(method.TagPulseLength); ok && dur < lo {
		shortest := math.Inf(1)
		for _, v := range pl.Values {
			shortest = math.Min(shortest, v)
		}
		if lo <= shortest {
			s.set(method.TagSamplingDuration, lo)
			dur = lo
		}
	}
	s.interval = dur * 1e-3
	return nil
}

// stepSize moves the step one fine DAC step at a time to the smallest step
// whose duration at the requested scan rate reaches the link minimum. The
// scan rate is left alone.
func (s *state) stepSize(link device.Link) error {
	step, ok := s.ps.Value(method.TagStepSize)
	if !ok || step == 0 {
		return ErrMissingStepSize
	}
	scan, ok := s.ps.Value(method.TagScanRate)
	if !ok || scan == 0 {
		return ErrMissingScanRate
	}
	lo := MinInterval(link, s.kind)
	maxSteps := int(math.Floor(method.MaxStepSize / method.LSB12))

	at := func(k int) float64 {
		v, _ := method.QuantizeStep(float64(k) * method.LSB12)
		return v
	}
	fits := func(k int) bool { return at(k)/scan >= lo }

	k := int(math.Floor(step/method.LSB12 + 0.5))
	if k < 1 {
		k = 1
	}
	for k > 1 && fits(k-1) {
		k--
	}
	for !fits(k) && k < maxSteps {
		k++
	}

	s.set(method.TagStepSize, at(k))
	s.interval = at(k) / scan
	return nil
}

// required returns the smallest decimation that keeps the samples per
// interval within the buffer.
func required(interval float64) float64 {
	buf := float64(SampleBuffer)
	if interval < ShortInterval {
		buf = ShortSampleBuffer
	}
	return math.Max(interval*ADCRate/buf, minProduct)
}

// Samples returns the raw samples per interval (s) at the given filter codes.
func Samples(interval float64, sinc2, sinc3 int) float64 {
	return interval * ADCRate / (method.Sinc2Value(sinc2) * method.Sinc3Value(sinc3))
}

// filter walks the ladder from the current setting: toward less decimation
// while the next rung still fits, then toward more decimation while the
// current one does not. Both walks stop at the ladder ends.
func (s *state) filter() {
	need := required(s.interval)
	fits := func(i int) bool { return ladder[i].product >= need }

	i := s.start()
	for i > 0 && fits(i-1) {
		i--
	}
	for i < len(ladder)-1 && !fits(i) {
		i++
	}

	s.set(method.TagSinc2, float64(ladder[i].sinc2))
	s.set(method.TagSinc3, float64(ladder[i].sinc3))
}

// start locates the current setting on the ladder, or the first rung with at
// least its decimation when the setting is not on it.
func (s *state) start() int {
	p := method.Sinc2Value(s.sinc2) * method.Sinc3Value(s.sinc3)
	for i, r := range ladder {
		if r.sinc2 == s.sinc2 && r.sinc3 == s.sinc3 {
			return i
		}
	}
	i := sort.Search(len(ladder), func(i int) bool { return ladder[i].product >= p })
	if i == len(ladder) {
		i--
	}
	return i
}
