// Package execute runs one experiment on a FreiStat: the acknowledged setup
// handshake, the data stream, cancellation and completion.
package execute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/device"
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/store"
	"github.com/itohio/freistat/pkg/wire"
)

// Machine drives one transport through Idle → SendingSetup → AwaitingAck →
// Running → Draining → Completed | Failed. It is owned by a single worker
// goroutine; State may be read from anywhere.
type Machine struct {
	tr    device.Transport
	st    *store.Store
	opts  options
	demux Demuxer

	mu    sync.RWMutex
	state State
}

// New creates a machine writing samples to the current record of st.
func New(tr device.Transport, st *store.Store, opts ...Option) *Machine {
	o := newOptions(opts)
	d := o.demux
	if d == nil {
		d = NewCycleDemuxer(st, o.progressive)
	}
	return &Machine{
		tr:    tr,
		st:    st,
		opts:  o,
		demux: d,
		state: Idle,
	}
}

// State returns the current phase.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev == s {
		return
	}
	m.opts.log.Debug("state", zap.Stringer("from", prev), zap.Stringer("to", s))
	for _, cb := range m.opts.onState {
		cb(s)
	}
}

func (m *Machine) fail(err error) error {
	m.setState(Failed)
	return err
}

// Execute creates a record for spec, runs its handshake and then the data
// stream until completion or cancellation.
func (m *Machine) Execute(ctx context.Context, spec Spec) error {
	if s := m.State(); s != Idle {
		return fmt.Errorf("%w: %s", ErrBusy, s)
	}
	rec := m.st.Create(spec.Kind)
	if err := rec.SetParams(spec.Params); err != nil {
		return m.fail(err)
	}
	m.opts.log.Info("starting experiment",
		zap.String("method", string(spec.Kind)),
		zap.Stringer("run", m.st.RunID()),
	)

	if err := m.Setup(ctx, spec.Steps()); err != nil {
		rec.Fail(err)
		return err
	}
	return m.Run(ctx)
}

// Setup sends steps one at a time. After each step that expects an
// acknowledge it waits for the instrument's reply and compares the command id
// it carries with the id sent. A mismatch, a device error or a timeout fails
// the machine; nothing is retried.
func (m *Machine) Setup(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		m.setState(SendingSetup)

		b, err := wire.Encode(step.Command, step.Experiment)
		if err != nil {
			return m.fail(fmt.Errorf("encode %s: %w", step.Command, err))
		}
		if err := m.tr.Send(b); err != nil {
			return m.fail(fmt.Errorf("send %s: %w: %w", step.Command, ErrTransport, err))
		}
		m.opts.log.Debug("sent", zap.Stringer("command", step.Command), zap.ByteString("telegram", b))

		if !step.Ack {
			continue
		}
		m.setState(AwaitingAck)
		if err := m.awaitAck(ctx, step.Command); err != nil {
			return m.fail(err)
		}
	}
	return nil
}

func (m *Machine) awaitAck(ctx context.Context, cmd wire.Command) error {
	timer := time.NewTimer(m.opts.ackTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: %s after %s", ErrAckTimeout, cmd, m.opts.ackTimeout)
		case b, ok := <-m.tr.Telegrams():
			if !ok {
				return m.transportErr()
			}
			v, _, err := wire.Decode(b)
			if err != nil {
				return fmt.Errorf("acknowledge of %s: %w", cmd, err)
			}
			if wire.IsData(v) {
				m.opts.log.Debug("stale data telegram during setup", zap.ByteString("telegram", b))
				continue
			}
			if code, ok := wire.ErrorCode(v); ok {
				return &DeviceError{Step: cmd, Code: code}
			}
			id, ok := wire.AckID(v)
			if !ok || id != cmd.ID {
				return fmt.Errorf("%w: sent %s, got %s", ErrHandshakeMismatch, cmd, v)
			}
			return nil
		}
	}
}

func (m *Machine) transportErr() error {
	if err := m.tr.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, device.ErrClosed)
}

// Run consumes the data stream. Data telegrams become samples that are
// appended to the current record and forwarded to the output; a command
// telegram marks completion. Cancelling ctx sends Stop, discards what the
// transport still delivers and returns the context error.
func (m *Machine) Run(ctx context.Context) error {
	m.setState(Running)
	telegrams := m.tr.Telegrams()

	for {
		if ctx.Err() != nil {
			return m.cancel(ctx)
		}

		select {
		case <-ctx.Done():
			return m.cancel(ctx)
		case b, ok := <-telegrams:
			if !ok {
				m.flush()
				return m.fail(m.transportErr())
			}
			v, _, err := wire.Decode(b)
			if err != nil {
				m.opts.log.Warn("dropping malformed telegram", zap.ByteString("telegram", b), zap.Error(err))
				continue
			}

			switch {
			case wire.IsData(v):
				d, err := wire.ParseData(v)
				if err != nil {
					m.opts.log.Warn("dropping malformed data telegram", zap.ByteString("telegram", b), zap.Error(err))
					continue
				}
				if err := m.push(ctx, m.demux.Sample(d)); err != nil {
					return m.cancel(ctx)
				}
			case wire.IsCommand(v):
				return m.complete(ctx)
			case wire.IsError(v):
				code, _ := wire.ErrorCode(v)
				m.flush()
				return m.fail(&DeviceError{Step: wire.Control(wire.ControlStart), Code: code})
			default:
				m.opts.log.Debug("ignoring telegram", zap.ByteString("telegram", b))
			}
		}
	}
}

// push stores s and forwards it to the output.
func (m *Machine) push(ctx context.Context, s sample.Sample) error {
	if r := m.st.Current(); r != nil {
		if err := r.Append(s); err != nil {
			m.opts.log.Warn("sample not stored", zap.Error(err))
		}
	}
	return m.forward(ctx, s)
}

func (m *Machine) forward(ctx context.Context, s sample.Sample) error {
	if m.opts.out == nil {
		return nil
	}
	select {
	case m.opts.out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) flush() {
	if r := m.st.Current(); r != nil {
		r.Flush()
	}
}

func (m *Machine) complete(ctx context.Context) error {
	m.setState(Draining)
	m.flush()
	for _, s := range m.demux.Complete() {
		if err := m.forward(ctx, s); err != nil {
			break
		}
	}
	m.setState(Completed)
	m.opts.log.Info("experiment completed", zap.Stringer("run", m.st.RunID()))
	return nil
}

// cancel stops the instrument and discards telegrams until the transport has
// been quiet for the drain period, the stop is acknowledged, or the ack
// timeout passes.
func (m *Machine) cancel(ctx context.Context) error {
	m.setState(Draining)

	b, err := wire.Encode(wire.Control(wire.ControlStop), wire.Experiment{})
	if err == nil {
		err = m.tr.Send(b)
	}
	if err != nil {
		m.opts.log.Warn("failed to send stop", zap.Error(err))
	}

	deadline := time.NewTimer(m.opts.ackTimeout)
	defer deadline.Stop()
	quiet := time.NewTimer(m.opts.drainQuiet)
	defer quiet.Stop()

	discarded := 0
drain:
	for {
		select {
		case b, ok := <-m.tr.Telegrams():
			if !ok {
				break drain
			}
			discarded++
			if v, _, err := wire.Decode(b); err == nil && wire.IsAck(v) {
				if id, _ := wire.AckID(v); id == wire.ExperimentControl {
					break drain
				}
			}
			quiet.Reset(m.opts.drainQuiet)
		case <-quiet.C:
			break drain
		case <-deadline.C:
			break drain
		}
	}

	m.flush()
	m.setState(Completed)
	m.opts.log.Info("experiment cancelled", zap.Int("discarded", discarded))
	return fmt.Errorf("experiment cancelled: %w", ctx.Err())
}
