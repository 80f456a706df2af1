package discovery

import (
	"context"
	"time"

	"go-scooterscan/geoquery"
	"go-scooterscan/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// Retrier wraps a Querier and retries transient failures with exponential
// backoff. Every other failure is returned on the first attempt.
type Retrier struct {
	next   geoquery.Querier
	policy RetryPolicy
	logger log.Logger
}

func NewRetrier(next geoquery.Querier, policy RetryPolicy, logger log.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Retrier{next: next, policy: policy, logger: logger}
}

func (r *Retrier) Query(ctx context.Context, region types.Region) (geoquery.Result, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.policy.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         r.policy.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)
	return backoff.RetryNotifyWithData(
		func() (geoquery.Result, error) {
			attempt++
			res, err := r.next.Query(ctx, region)
			if err != nil && geoquery.KindOf(err) != geoquery.Transient {
				return res, backoff.Permanent(err)
			}
			return res, err
		},
		policy,
		func(err error, wait time.Duration) {
			level.Warn(r.logger).Log("msg", "retrying query", "region", region.Key(), "attempt", attempt, "wait", wait, "err", err)
		},
	)
}
