package execute

import (
	"time"

	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/sample"
)

const (
	// DefaultAckTimeout bounds the wait for each acknowledge.
	DefaultAckTimeout = 2 * time.Second
	// DefaultDrainQuiet ends draining once the transport stayed silent this
	// long after Stop.
	DefaultDrainQuiet = 100 * time.Millisecond
)

// Option configures a Machine.
type Option func(*options)

type options struct {
	log         *zap.Logger
	progressive bool
	ackTimeout  time.Duration
	drainQuiet  time.Duration
	out         chan<- sample.Sample
	demux       Demuxer
	onState     []func(State)
}

func newOptions(opts []Option) options {
	o := options{
		log:        zap.NewNop(),
		ackTimeout: DefaultAckTimeout,
		drainQuiet: DefaultDrainQuiet,
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

// WithProgressive keeps one time reference across cycles instead of
// re-latching it at every run id change.
func WithProgressive(progressive bool) Option {
	return func(o *options) { o.progressive = progressive }
}

// WithAckTimeout bounds the wait for each acknowledge.
func WithAckTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ackTimeout = d
		}
	}
}

// WithDrainQuiet sets how long the transport must stay silent after Stop
// before draining ends.
func WithDrainQuiet(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.drainQuiet = d
		}
	}
}

// WithOutput forwards every sample to out. Sends block, so a slow consumer
// slows the run down. The machine never closes out.
func WithOutput(out chan<- sample.Sample) Option {
	return func(o *options) { o.out = out }
}

// WithDemuxer replaces the single-method demultiplexer.
func WithDemuxer(d Demuxer) Option {
	return func(o *options) { o.demux = d }
}

// OnState registers a callback run after every state transition.
func OnState(callback func(State)) Option {
	return func(o *options) { o.onState = append(o.onState, callback) }
}
