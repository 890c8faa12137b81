package method

// Experiment is a typed method description in SI units. Params converts it to
// the firmware parameter list (mV, mV/s, ms, hardware codes) in reference
// table order, reporting every value it had to adjust.
type Experiment interface {
	Kind() Kind
	Params() (Params, []Notice)
}

var (
	_ Experiment = (*Chronoamperometry)(nil)
	_ Experiment = (*OpenCircuit)(nil)
	_ Experiment = (*LinearSweep)(nil)
	_ Experiment = (*CyclicVoltammetry)(nil)
	_ Experiment = (*NormalPulse)(nil)
	_ Experiment = (*DifferentialPulse)(nil)
	_ Experiment = (*SquareWave)(nil)
	_ Experiment = (*Impedance)(nil)
)

// Defaults of the FreiStat API.
const (
	DefaultBasePotential    = 0.0   // V
	DefaultStartPotential   = 0.5   // V
	DefaultStopPotential    = 0.9   // V
	DefaultLowerPotential   = -0.62 // V
	DefaultUpperPotential   = 1.05  // V
	DefaultStepSize         = 0.002 // V
	DefaultScanRate         = 0.2   // V/s
	DefaultCurrentRange     = 45e-6 // A
	DefaultCycles           = 1
	DefaultDeltaVStaircase  = 0.05  // V
	DefaultDeltaVPeak       = 0.01  // V
	DefaultPulseLength      = 5.0   // s
	DefaultSamplingRate     = 0.01  // s
	DefaultSamplingDuration = 0.005 // s
	DefaultSinc2            = 667
	DefaultSinc3            = 4
)

// Filter selects the ADC filter chain common to every method.
type Filter struct {
	MainsFilter bool `yaml:"mains_filter"`
	Sinc2       int  `yaml:"sinc2"` // oversampling rate, 0 disables
	Sinc3       int  `yaml:"sinc3"` // oversampling rate, 0 disables
}

// DefaultFilter returns the default filter chain.
func DefaultFilter() Filter {
	return Filter{Sinc2: DefaultSinc2, Sinc3: DefaultSinc3}
}

func (f Filter) params(notices *[]Notice) Params {
	s2, n2 := Sinc2Code(f.Sinc2)
	s3, n3 := Sinc3Code(f.Sinc3)
	addNotice(notices, n2)
	addNotice(notices, n3)
	return Params{
		Scalar(TagMainsFilter, flag(f.MainsFilter)),
		Scalar(TagSinc2, float64(s2)),
		Scalar(TagSinc3, float64(s3)),
	}
}

func addNotice(notices *[]Notice, n *Notice) {
	if n != nil {
		*notices = append(*notices, *n)
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func milli(v float64) float64 { return v * 1e3 }

func millis(vs []float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = milli(v)
	}
	return out
}

func rtia(currentRange float64, notices *[]Notice) Param {
	code, n := ResistorCode(currentRange)
	addNotice(notices, n)
	return Scalar(TagLPTIARtia, float64(code))
}

// Chronoamperometry is chronoamperometry: a staircase of potential steps, each held for its
// pulse length while the current is sampled.
type Chronoamperometry struct {
	PotentialSteps []float64 `yaml:"potential_steps"` // V
	PulseLengths   []float64 `yaml:"pulse_lengths"`   // s
	SamplingRate   float64   `yaml:"sampling_rate"`   // s between samples
	Cycles         int       `yaml:"cycles"`
	CurrentRange   float64   `yaml:"current_range"` // A
	Filter         `yaml:",inline"`
}

// DefaultCA returns a two-step chronoamperometry with API defaults.
func DefaultCA() *Chronoamperometry {
	return &Chronoamperometry{
		PotentialSteps: []float64{DefaultStartPotential, DefaultStopPotential},
		PulseLengths:   []float64{DefaultPulseLength, DefaultPulseLength},
		SamplingRate:   DefaultSamplingRate,
		Cycles:         DefaultCycles,
		CurrentRange:   DefaultCurrentRange,
		Filter:         DefaultFilter(),
	}
}

func (e *Chronoamperometry) Kind() Kind { return CA }

func (e *Chronoamperometry) Params() (Params, []Notice) {
	var notices []Notice
	steps := make([]float64, len(e.PotentialSteps))
	for i, v := range e.PotentialSteps {
		steps[i] = quantize(TagPotentialSteps, milli(v), false, &notices)
	}
	ps := Params{
		List(TagPotentialSteps, steps...),
		List(TagPulseLength, millis(e.PulseLengths)...),
		Scalar(TagSamplingRate, milli(e.SamplingRate)),
		Scalar(TagCycle, float64(e.Cycles)),
		rtia(e.CurrentRange, &notices),
	}
	return append(ps, e.Filter.params(&notices)...), notices
}

// OCP records the open circuit potential for Duration.
type OpenCircuit struct {
	Duration     float64 `yaml:"duration"`      // s
	SamplingRate float64 `yaml:"sampling_rate"` // s
	Cycles       int     `yaml:"cycles"`
	Filter       `yaml:",inline"`
}

// DefaultOCP returns an open circuit measurement with API defaults.
func DefaultOCP() *OpenCircuit {
	return &OpenCircuit{
		Duration:     DefaultPulseLength,
		SamplingRate: DefaultSamplingRate,
		Cycles:       DefaultCycles,
		Filter:       DefaultFilter(),
	}
}

func (e *OpenCircuit) Kind() Kind { return OCP }

func (e *OpenCircuit) Params() (Params, []Notice) {
	var notices []Notice
	ps := Params{
		Scalar(TagPulseLength, milli(e.Duration)),
		Scalar(TagSamplingRate, milli(e.SamplingRate)),
		Scalar(TagCycle, float64(e.Cycles)),
	}
	return append(ps, e.Filter.params(&notices)...), notices
}

// LinearSweep is linear sweep voltammetry from StartPotential to StopPotential.
type LinearSweep struct {
	StartPotential float64 `yaml:"start_potential"` // V
	StopPotential  float64 `yaml:"stop_potential"`  // V
	StepSize       float64 `yaml:"step_size"`       // V
	ScanRate       float64 `yaml:"scan_rate"`       // V/s
	Cycles         int     `yaml:"cycles"`
	CurrentRange   float64 `yaml:"current_range"` // A
	FixedWE        bool    `yaml:"fixed_we"`
	Filter         `yaml:",inline"`
}

// DefaultLSV returns a linear sweep with API defaults.
func DefaultLSV() *LinearSweep {
	return &LinearSweep{
		StartPotential: DefaultStartPotential,
		StopPotential:  DefaultStopPotential,
		StepSize:       DefaultStepSize,
		ScanRate:       DefaultScanRate,
		Cycles:         DefaultCycles,
		CurrentRange:   DefaultCurrentRange,
		FixedWE:        true,
		Filter:         DefaultFilter(),
	}
}

func (e *LinearSweep) Kind() Kind { return LSV }

func (e *LinearSweep) Params() (Params, []Notice) {
	var notices []Notice
	start, stop := milli(e.StartPotential), milli(e.StopPotential)
	fixed := FixedWE(start, stop, e.FixedWE)
	ps := Params{
		Scalar(TagStartPotential, quantize(TagStartPotential, start, fixed, &notices)),
		Scalar(TagStopPotential, stop),
		Scalar(TagStepSize, quantizeStep(TagStepSize, milli(e.StepSize), &notices)),
		Scalar(TagScanRate, milli(e.ScanRate)),
		Scalar(TagCycle, float64(e.Cycles)),
		rtia(e.CurrentRange, &notices),
		Scalar(TagFixedWEPotential, flag(fixed)),
	}
	return append(ps, e.Filter.params(&notices)...), notices
}

// CyclicVoltammetry is cyclic voltammetry between LowerPotential and UpperPotential,
// starting at StartPotential.
type CyclicVoltammetry struct {
	StartPotential float64 `yaml:"start_potential"` // V
	LowerPotential float64 `yaml:"lower_potential"` // V
	UpperPotential float64 `yaml:"upper_potential"` // V
	StepSize       float64 `yaml:"step_size"`       // V
	ScanRate       float64 `yaml:"scan_rate"`       // V/s
	Cycles         int     `yaml:"cycles"`
	CurrentRange   float64 `yaml:"current_range"` // A
	FixedWE        bool    `yaml:"fixed_we"`
	Filter         `yaml:",inline"`
}

// DefaultCV returns a cyclic voltammetry with API defaults.
func DefaultCV() *CyclicVoltammetry {
	return &CyclicVoltammetry{
		StartPotential: DefaultStartPotential,
		LowerPotential: DefaultLowerPotential,
		UpperPotential: DefaultUpperPotential,
		StepSize:       DefaultStepSize,
		ScanRate:       DefaultScanRate,
		Cycles:         DefaultCycles,
		CurrentRange:   DefaultCurrentRange,
		FixedWE:        true,
		Filter:         DefaultFilter(),
	}
}

func (e *CyclicVoltammetry) Kind() Kind { return CV }

func (e *CyclicVoltammetry) Params() (Params, []Notice) {
	var notices []Notice
	lower, upper := milli(e.LowerPotential), milli(e.UpperPotential)
	fixed := FixedWE(lower, upper, e.FixedWE)
	ps := Params{
		Scalar(TagStartPotential, quantize(TagStartPotential, milli(e.StartPotential), fixed, &notices)),
		Scalar(TagLowerPotential, lower),
		Scalar(TagUpperPotential, upper),
		Scalar(TagStepSize, quantizeStep(TagStepSize, milli(e.StepSize), &notices)),
		Scalar(TagScanRate, milli(e.ScanRate)),
		Scalar(TagCycle, float64(e.Cycles)),
		rtia(e.CurrentRange, &notices),
		Scalar(TagFixedWEPotential, flag(fixed)),
	}
	return append(ps, e.Filter.params(&notices)...), notices
}

// NormalPulse is normal pulse voltammetry: pulses from BasePotential of increasing
// height between StartPotential and StopPotential.
type NormalPulse struct {
	BasePotential    float64   `yaml:"base_potential"`    // V
	StartPotential   float64   `yaml:"start_potential"`   // V
	StopPotential    float64   `yaml:"stop_potential"`    // V
	DeltaVStaircase  float64   `yaml:"delta_v_staircase"` // V
	PulseLengths     []float64 `yaml:"pulse_lengths"`     // s, [tau, tau']
	SamplingDuration float64   `yaml:"sampling_duration"` // s
	Cycles           int       `yaml:"cycles"`
	CurrentRange     float64   `yaml:"current_range"` // A
	FixedWE          bool      `yaml:"fixed_we"`
	Filter           `yaml:",inline"`
}

// DefaultNPV returns a normal pulse voltammetry with API defaults.
func DefaultNPV() *NormalPulse {
	return &NormalPulse{
		BasePotential:    DefaultBasePotential,
		StartPotential:   DefaultStartPotential,
		StopPotential:    DefaultStopPotential,
		DeltaVStaircase:  DefaultDeltaVStaircase,
		PulseLengths:     []float64{DefaultPulseLength, DefaultPulseLength},
		SamplingDuration: DefaultSamplingDuration,
		Cycles:           DefaultCycles,
		CurrentRange:     DefaultCurrentRange,
		FixedWE:          true,
		Filter:           DefaultFilter(),
	}
}

func (e *NormalPulse) Kind() Kind { return NPV }

func (e *NormalPulse) Params() (Params, []Notice) {
	var notices []Notice
	base, stop := milli(e.BasePotential), milli(e.StopPotential)
	dvs := milli(e.DeltaVStaircase)
	fixed := FixedWE(base, stop+dvs, e.FixedWE)
	ps := Params{
		Scalar(TagBasePotential, quantize(TagBasePotential, base, fixed, &notices)),
		Scalar(TagStartPotential, quantize(TagStartPotential, milli(e.StartPotential), fixed, &notices)),
		Scalar(TagStopPotential, stop),
		Scalar(TagDeltaVStaircase, dvs),
		List(TagPulseLength, millis(e.PulseLengths)...),
		Scalar(TagSamplingDuration, milli(e.SamplingDuration)),
		Scalar(TagCycle, float64(e.Cycles)),
		rtia(e.CurrentRange, &notices),
		Scalar(TagFixedWEPotential, flag(fixed)),
	}
	return append(ps, e.Filter.params(&notices)...), notices
}

// Pulse holds the fields shared by differential pulse and square wave
// voltammetry.
type Pulse struct {
	StartPotential   float64   `yaml:"start_potential"`   // V
	StopPotential    float64   `yaml:"stop_potential"`    // V
	DeltaVStaircase  float64   `yaml:"delta_v_staircase"` // V
	DeltaVPeak       float64   `yaml:"delta_v_peak"`      // V
	PulseLengths     []float64 `yaml:"pulse_lengths"`     // s, [tau', tau]
	SamplingDuration float64   `yaml:"sampling_duration"` // s
	Cycles           int       `yaml:"cycles"`
	CurrentRange     float64   `yaml:"current_range"` // A
	FixedWE          bool      `yaml:"fixed_we"`
	Filter           `yaml:",inline"`
}

func defaultPulse() Pulse {
	return Pulse{
		StartPotential:   DefaultStartPotential,
		StopPotential:    DefaultStopPotential,
		DeltaVStaircase:  DefaultDeltaVStaircase,
		DeltaVPeak:       DefaultDeltaVPeak,
		PulseLengths:     []float64{DefaultPulseLength, DefaultPulseLength},
		SamplingDuration: DefaultSamplingDuration,
		Cycles:           DefaultCycles,
		CurrentRange:     DefaultCurrentRange,
		FixedWE:          true,
		Filter:           DefaultFilter(),
	}
}

func (e *Pulse) params() (Params, []Notice) {
	var notices []Notice
	start, stop := milli(e.StartPotential), milli(e.StopPotential)
	peak := milli(e.DeltaVPeak)
	fixed := FixedWE(start-peak, stop+peak, e.FixedWE)
	ps := Params{
		Scalar(TagStartPotential, quantize(TagStartPotential, start, fixed, &notices)),
		Scalar(TagStopPotential, stop),
		Scalar(TagDeltaVStaircase, milli(e.DeltaVStaircase)),
		Scalar(TagDeltaVPeak, peak),
		List(TagPulseLength, millis(e.PulseLengths)...),
		Scalar(TagSamplingDuration, milli(e.SamplingDuration)),
		Scalar(TagCycle, float64(e.Cycles)),
		rtia(e.CurrentRange, &notices),
		Scalar(TagFixedWEPotential, flag(fixed)),
	}
	return append(ps, e.Filter.params(&notices)...), notices
}

// DifferentialPulse is differential pulse voltammetry.
type DifferentialPulse struct {
	Pulse `yaml:",inline"`
}

// DefaultDPV returns a differential pulse voltammetry with API defaults.
func DefaultDPV() *DifferentialPulse { return &DifferentialPulse{Pulse: defaultPulse()} }

func (e *DifferentialPulse) Kind() Kind                 { return DPV }
func (e *DifferentialPulse) Params() (Params, []Notice) { return e.Pulse.params() }

// SquareWave is square wave voltammetry.
type SquareWave struct {
	Pulse `yaml:",inline"`
}

// DefaultSWV returns a square wave voltammetry with API defaults.
func DefaultSWV() *SquareWave { return &SquareWave{Pulse: defaultPulse()} }

func (e *SquareWave) Kind() Kind                 { return SWV }
func (e *SquareWave) Params() (Params, []Notice) { return e.Pulse.params() }

// Impedance is an impedance spectrum between StartFrequency and StopFrequency.
type Impedance struct {
	StartFrequency float64 `yaml:"start_frequency"` // Hz
	StopFrequency  float64 `yaml:"stop_frequency"`  // Hz
	ACAmplitude    float64 `yaml:"ac_amplitude"`    // V
	DCOffset       float64 `yaml:"dc_offset"`       // V
	Points         int     `yaml:"points"`
	Logarithmic    bool    `yaml:"logarithmic"`
	Filter         `yaml:",inline"`
}

// DefaultEIS returns a logarithmic 1 Hz to 100 kHz sweep.
func DefaultEIS() *Impedance {
	return &Impedance{
		StartFrequency: 1,
		StopFrequency:  100e3,
		ACAmplitude:    0.01,
		Points:         50,
		Logarithmic:    true,
		Filter:         DefaultFilter(),
	}
}

func (e *Impedance) Kind() Kind { return EIS }

func (e *Impedance) Params() (Params, []Notice) {
	var notices []Notice
	ps := Params{
		Scalar(TagStartFrequency, e.StartFrequency),
		Scalar(TagStopFrequency, e.StopFrequency),
		Scalar(TagACAmplitude, milli(e.ACAmplitude)),
		Scalar(TagDCOffset, milli(e.DCOffset)),
		Scalar(TagNumPoints, float64(e.Points)),
		Scalar(TagSweepType, flag(e.Logarithmic)),
	}
	return append(ps, e.Filter.params(&notices)...), notices
}

// Sequence returns the parameter list of a sequence meta-record.
func Sequence(length, cycles int) Params {
	return Params{
		Scalar(TagSequenceLength, float64(length)),
		Scalar(TagCycle, float64(cycles)),
	}
}

// Default returns the default descriptor for kind, or nil.
func Default(kind Kind) Experiment {
	switch kind {
	case CA:
		return DefaultCA()
	case OCP:
		return DefaultOCP()
	case LSV:
		return DefaultLSV()
	case CV:
		return DefaultCV()
	case NPV:
		return DefaultNPV()
	case DPV:
		return DefaultDPV()
	case SWV:
		return DefaultSWV()
	case EIS:
		return DefaultEIS()
	}
	return nil
}
