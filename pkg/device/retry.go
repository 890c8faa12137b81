package device

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// retry runs op with exponential backoff until it succeeds, ctx is done or
// timeout elapses.
func retry(ctx context.Context, timeout time.Duration, log *zap.Logger, target string, op func() error) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      timeout,
		Clock:               backoff.SystemClock,
	}
	notify := func(err error, wait time.Duration) {
		log.Debug("open failed, retrying",
			zap.String("target", target),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}
