// Package sequence chains several methods into one device-side sequence and
// reassembles per-method results from the single stream it produces.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/device"
	"github.com/itohio/freistat/pkg/execute"
	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/store"
	"github.com/itohio/freistat/pkg/wire"
)

const (
	// MinLength is the fewest methods a sequence chains.
	MinLength = 2
	// MaxLength is the most methods a sequence chains.
	MaxLength = method.MaxSequenceLength
)

var (
	ErrSequenceLength  = errors.New("sequence length out of range")
	ErrSetupFailed     = errors.New("sequence setup failed")
	ErrNotSequenceable = errors.New("method cannot run in a sequence")
)

// SetupError reports how many slots failed validation.
type SetupError struct {
	Failed int
	Total  int
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%d of %d setups failed", e.Failed, e.Total)
}

func (e *SetupError) Is(target error) bool { return target == ErrSetupFailed }

// Slot is one method of the sequence. Err is set when the method failed
// validation; the other slots are unaffected.
type Slot struct {
	Experiment method.Experiment
	Spec       execute.Spec
	Err        error
}

// Sequence collects methods and runs them as one device-side sequence.
type Sequence struct {
	opts  options
	slots []Slot
}

// New creates an empty sequence.
func New(opts ...Option) *Sequence {
	return &Sequence{opts: newOptions(opts)}
}

// Add validates exp and appends it as the next slot. A validation failure is
// recorded in the slot and returned; the slot still counts towards the
// sequence so that Run can report it.
func (s *Sequence) Add(exp method.Experiment) error {
	slot := Slot{Experiment: exp}

	switch {
	case !exp.Kind().Sequenceable():
		slot.Err = fmt.Errorf("%w: %s", ErrNotSequenceable, exp.Kind())
	default:
		spec, err := execute.Prepare(exp, s.opts.optimize, s.opts.link, s.opts.log)
		slot.Spec, slot.Err = spec, err
	}

	if slot.Err != nil {
		s.opts.log.Warn("sequence slot failed",
			zap.Int("slot", len(s.slots)),
			zap.String("method", string(exp.Kind())),
			zap.Error(slot.Err),
		)
	}
	s.slots = append(s.slots, slot)
	return slot.Err
}

// Slots returns the slots in order.
func (s *Sequence) Slots() []Slot {
	return append([]Slot(nil), s.slots...)
}

// Len returns the number of slots.
func (s *Sequence) Len() int {
	return len(s.slots)
}

// Params returns the parameter list of the sequence meta-record.
func (s *Sequence) Params() method.Params {
	return method.Sequence(len(s.slots), s.opts.cycles)
}

// Check rejects sequences of the wrong length and sequences with failed
// slots.
func (s *Sequence) Check() error {
	n := len(s.slots)
	if n < MinLength || n > MaxLength {
		return fmt.Errorf("%w: %d methods, want %d to %d", ErrSequenceLength, n, MinLength, MaxLength)
	}
	failed := 0
	for _, slot := range s.slots {
		if slot.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return &SetupError{Failed: failed, Total: n}
	}
	if _, err := method.Validate(method.SEQ, s.Params()); err != nil {
		return err
	}
	return nil
}

// Steps returns the setup handshake: enable sequence mode, send the sequence
// parameters, type and parameters of every method, disable sequence mode and
// start. Every step is acknowledged.
func (s *Sequence) Steps() []execute.Step {
	seq := method.Telegram(method.SEQ, s.Params())
	steps := []execute.Step{
		{Command: wire.Sequence(wire.SequenceEnable), Experiment: seq, Ack: true},
		{Command: wire.Parameters(), Experiment: seq, Ack: true},
	}
	for _, slot := range s.slots {
		exp := method.Telegram(slot.Spec.Kind, slot.Spec.Params)
		steps = append(steps,
			execute.Step{Command: wire.Type(), Experiment: exp, Ack: true},
			execute.Step{Command: wire.Parameters(), Experiment: exp, Ack: true},
		)
	}
	return append(steps,
		execute.Step{Command: wire.Sequence(wire.SequenceDisable), Experiment: seq, Ack: true},
		execute.Step{Command: wire.Control(wire.ControlStart), Experiment: seq, Ack: true},
	)
}

// Run executes the sequence over tr. st receives one record per slot followed
// by the SEQ meta-record; samples are forwarded to out when it is not nil and
// the stream ends with two sentinels.
func (s *Sequence) Run(ctx context.Context, tr device.Transport, st *store.Store, out chan<- sample.Sample) error {
	if err := s.Check(); err != nil {
		return err
	}

	for _, slot := range s.slots {
		rec := st.Create(slot.Spec.Kind)
		if err := rec.SetParams(slot.Spec.Params); err != nil {
			return err
		}
	}
	st.AddMeta(s.Params())
	st.First()

	opts := append([]execute.Option{
		execute.WithLogger(s.opts.log),
		execute.WithDemuxer(newDemuxer(st, len(s.slots))),
	}, s.opts.execute...)
	if out != nil {
		opts = append(opts, execute.WithOutput(out))
	}
	m := execute.New(tr, st, opts...)

	s.opts.log.Info("starting sequence",
		zap.Int("methods", len(s.slots)),
		zap.Int("cycles", s.opts.cycles),
		zap.Stringer("run", st.RunID()),
	)
	if err := m.Setup(ctx, s.Steps()); err != nil {
		err = fmt.Errorf("sequence setup: %w", err)
		// Nothing ran, so every slot and the meta-record carry the failure.
		for _, r := range st.Records() {
			r.Fail(err)
		}
		return err
	}
	return m.Run(ctx)
}
