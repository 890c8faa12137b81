package sequence

import (
	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/device"
	"github.com/itohio/freistat/pkg/execute"
)

// Option configures a Sequence.
type Option func(*options)

type options struct {
	log      *zap.Logger
	cycles   int
	optimize bool
	link     device.Link
	execute  []execute.Option
}

func newOptions(opts []Option) options {
	o := options{
		log:    zap.NewNop(),
		cycles: 1,
		link:   device.LinkSerial,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithCycles sets how often the whole sequence repeats.
func WithCycles(n int) Option {
	return func(o *options) { o.cycles = n }
}

// WithOptimizer tunes every added method for link.
func WithOptimizer(link device.Link) Option {
	return func(o *options) {
		o.optimize = true
		o.link = link
	}
}

// WithExecuteOptions passes options to the execute machine, e.g. the ack
// timeout.
func WithExecuteOptions(opts ...execute.Option) Option {
	return func(o *options) { o.execute = append(o.execute, opts...) }
}
