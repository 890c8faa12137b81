package device

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBufferSize is the default size of the telegrams channel.
	DefaultBufferSize = 100
	// DefaultReadTimeout bounds a single read so the reader notices Close.
	DefaultReadTimeout = 400 * time.Millisecond
	// DefaultOpenTimeout bounds the retries of Connect.
	DefaultOpenTimeout = 3 * time.Second
)

// Option configures a transport.
type Option func(*options)

type options struct {
	log         *zap.Logger
	bufSize     int
	maxTelegram int
	readTimeout time.Duration
	openTimeout time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		log:         zap.NewNop(),
		bufSize:     DefaultBufferSize,
		maxTelegram: DefaultMaxTelegram,
		readTimeout: DefaultReadTimeout,
		openTimeout: DefaultOpenTimeout,
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

// WithBufferSize sets the capacity of the telegrams channel.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufSize = n
		}
	}
}

// WithMaxTelegram sets the longest telegram the serial framer accepts.
func WithMaxTelegram(n int) Option {
	return func(o *options) { o.maxTelegram = n }
}

// WithReadTimeout sets the UDP read deadline. Serial ports take theirs from
// the port configuration.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

// WithOpenTimeout sets how long Connect keeps retrying.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.openTimeout = d
		}
	}
}
