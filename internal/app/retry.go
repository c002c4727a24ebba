package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"quiz-attempt-service/internal/domain"
)

// RetryPolicy bounds how long a sweep spends on a single record.
type RetryPolicy struct {
	MaxRetries      int
	RecordTimeout   time.Duration
	InitialInterval time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.RecordTimeout <= 0 {
		p.RecordTimeout = 5 * time.Second
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 50 * time.Millisecond
	}
	return p
}

// do runs op until it succeeds, fails with a non-storage error, or the retry budget is spent.
// Each try gets its own RecordTimeout.
func (p RetryPolicy) do(ctx context.Context, op func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.InitialInterval
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.MaxRetries)), ctx)
	return backoff.Retry(func() error {
		tryCtx, cancel := context.WithTimeout(ctx, p.RecordTimeout)
		defer cancel()
		err := op(tryCtx)
		if err != nil && !errors.Is(err, domain.ErrStorage) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
