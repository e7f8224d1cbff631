// Package retry is the exponential-backoff executor shared by the
// connect-time HTTP legs and websocket reconnection.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/crossrail/fivebells/internal/domain"
)

// Options tune one Retry call. Zero values take the defaults below.
// Deadline of zero retries forever.
type Options struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Factor   float64
	Deadline time.Duration
}

const (
	DefaultMinDelay = time.Second
	DefaultMaxDelay = 30 * time.Second
	DefaultFactor   = 1.5
)

func (o Options) withDefaults() Options {
	if o.MinDelay <= 0 {
		o.MinDelay = DefaultMinDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Factor <= 0 {
		o.Factor = DefaultFactor
	}
	return o
}

func (o Options) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.MinDelay
	b.MaxInterval = o.MaxDelay
	b.Multiplier = o.Factor
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Retry invokes op until it succeeds. On failure it sleeps the current
// backoff delay and tries again, unless sleeping would overshoot the
// deadline, in which case it gives up immediately with a timeout-kind
// error wrapping the last failure. The operation must be safe to
// invoke repeatedly.
func Retry(ctx context.Context, opts Options, op func(context.Context) error) error {
	opts = opts.withDefaults()
	schedule := opts.schedule()

	var deadline time.Time
	if opts.Deadline > 0 {
		deadline = time.Now().Add(opts.Deadline)
	}

	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := schedule.NextBackOff()
		// Overshoot is checked before sleeping so the deadline never
		// buys one extra attempt.
		if !deadline.IsZero() && time.Now().Add(delay).After(deadline) {
			return &domain.Error{
				Kind:    domain.KindTimeout,
				Message: "retry deadline exceeded: " + err.Error(),
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
}
