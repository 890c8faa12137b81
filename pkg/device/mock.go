package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/itohio/freistat/pkg/config"
	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/wire"
)

// Mock emulates the FreiStat firmware in process. It acknowledges commands,
// validates parameters against the reference tables and plays back the
// configured method on a resistive dummy cell.
type Mock struct {
	cfg  config.MockConfig
	opts options
	link Link

	telegrams chan []byte
	inbox     chan wire.Value
	done      chan struct{}
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	// Firmware state, owned by the emulator goroutine.
	kind     method.Kind
	single   *program
	sequence []program
	seqMode  bool
	passes   int
}

// NewMock creates a firmware emulator.
func NewMock(cfg *config.MockConfig, opts ...Option) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}

	o := newOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:       *cfg,
		opts:      o,
		link:      LinkSerial,
		telegrams: make(chan []byte, o.bufSize),
		inbox:     make(chan wire.Value, 16),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetLink selects which link the emulator reports for timing limits.
func (m *Mock) SetLink(l Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link = l
}

// Connect starts the emulated firmware.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}
	if m.ctx.Err() != nil {
		return ErrClosed
	}
	m.connected = true

	go m.run()

	return nil
}

// Close stops the emulator.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	m.mu.Unlock()

	<-m.done
	return nil
}

// Send hands one host telegram to the emulator.
func (m *Mock) Send(telegram []byte) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}
	v, _, err := wire.Decode(telegram)
	if err != nil {
		return fmt.Errorf("mock: %w", err)
	}
	select {
	case m.inbox <- v:
		return nil
	case <-m.ctx.Done():
		return ErrClosed
	}
}

// Telegrams returns the channel of emitted telegrams.
func (m *Mock) Telegrams() <-chan []byte {
	return m.telegrams
}

// Err always returns nil; the emulator only stops on Close.
func (m *Mock) Err() error { return nil }

// IsConnected returns whether the emulator is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Link returns the emulated link.
func (m *Mock) Link() Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.link
}

func (m *Mock) run() {
	defer close(m.done)
	defer close(m.telegrams)

	limit := rate.Inf
	if m.cfg.SamplePeriod > 0 {
		limit = rate.Every(m.cfg.SamplePeriod)
	}
	limiter := rate.NewLimiter(limit, 1)

	var gen *generator
	for {
		if gen == nil {
			select {
			case <-m.ctx.Done():
				return
			case v := <-m.inbox:
				gen = m.handle(v, gen)
			}
			continue
		}

		select {
		case <-m.ctx.Done():
			return
		case v := <-m.inbox:
			gen = m.handle(v, gen)
			continue
		default:
		}

		if err := limiter.Wait(m.ctx); err != nil {
			return
		}
		d, p, ok := gen.next()
		if !ok {
			gen = nil
			m.emit(wire.CompletionTelegram())
			continue
		}
		m.measure(&d, p)
		m.emit(wire.DataTelegram(d))
	}
}

func (m *Mock) emit(v wire.Value) {
	select {
	case m.telegrams <- []byte(v.String()):
	case <-m.ctx.Done():
	}
}

// reject answers with an error telegram carrying the code of err.
func (m *Mock) reject(err error) {
	code := method.Code(err)
	if code == 0 {
		code = wire.Code(err)
	}
	if code == 0 {
		code = method.CodeSetup
	}
	m.opts.log.Debug("mock rejected command", zap.Int("code", code), zap.Error(err))
	m.emit(wire.ErrorTelegram(code))
}

// handle applies one host command and returns the generator to continue
// with.
func (m *Mock) handle(v wire.Value, gen *generator) *generator {
	cmd, exp, err := wire.ParseCommand(v)
	if err != nil {
		m.reject(err)
		return gen
	}

	switch cmd.ID {
	case wire.ExperimentType:
		kind, err := method.ParseKind(exp.Type)
		if err != nil {
			m.reject(err)
			return gen
		}
		if !m.seqMode {
			m.sequence = nil
		}
		m.kind = kind

	case wire.ExperimentParameters:
		if err := m.configure(exp); err != nil {
			m.reject(err)
			return gen
		}

	case wire.SequenceControl:
		switch cmd.Sub {
		case wire.SequenceEnable:
			m.seqMode = true
			m.sequence = nil
			m.kind = method.SEQ
		case wire.SequenceDisable:
			m.seqMode = false
		}

	case wire.ExperimentControl:
		switch cmd.Sub {
		case wire.ControlStart:
			next, err := m.start()
			if err != nil {
				m.reject(err)
				return gen
			}
			m.emit(wire.AckTelegram(cmd))
			return next
		case wire.ControlStop:
			m.emit(wire.AckTelegram(cmd))
			return nil
		}
	}

	m.emit(wire.AckTelegram(cmd))
	return gen
}

func (m *Mock) configure(exp wire.Experiment) error {
	ps, err := method.FromMembers(exp.Params)
	if err != nil {
		return err
	}
	if _, err := method.Validate(m.kind, ps); err != nil {
		return err
	}

	if m.kind == method.SEQ {
		cycles, _ := ps.Value(method.TagCycle)
		m.passes = int(cycles)
		return nil
	}

	p, err := newProgram(m.kind, ps)
	if err != nil {
		return err
	}
	if m.seqMode {
		m.sequence = append(m.sequence, p)
		return nil
	}
	m.single = &p
	return nil
}

func (m *Mock) start() (*generator, error) {
	if len(m.sequence) > 0 && !m.seqMode {
		return newGenerator(m.passes, m.sequence...), nil
	}
	if m.single == nil {
		return nil, errors.New("mock: no experiment configured")
	}
	return newGenerator(1, *m.single), nil
}

// measure fills in what the dummy cell reads at d: a resistor between the
// electrodes in series with the open circuit potential, plus noise.
func (m *Mock) measure(d *wire.Data, p *program) {
	t := float32(d.Time)
	noise := (math32.Sin(t*0.37) + math32.Sin(t*1.13+1)) * 0.5 * float32(m.cfg.Noise)
	ocp := float32(m.cfg.OpenCircuit)

	if p.kind == method.OCP {
		d.Voltage = float64(ocp + noise*10)
		return
	}

	r := float32(m.cfg.CellResistance)
	if r <= 0 {
		r = 1
	}
	v := float32(d.Voltage)
	i := (v - ocp) / r * 1e3 // mV / Ω = mA, reported in µA
	if p.pulse != 0 {
		i = p.pulse / r * 1e3
	}
	d.Current = float64(i + noise)
	d.HasCurrent = true
}
