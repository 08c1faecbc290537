package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bnema/berth/internal/domain"
)

// callDriver runs fn with exponential backoff. Only errors marked transient
// are retried; anything else fails on the first attempt. Failures come back
// as *domain.RuntimeError carrying the driver diagnostic.
func (s *Service) callDriver(ctx context.Context, op, id string, fn func(ctx context.Context) error) error {
	log := zerowrap.FromCtx(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.Retry.InitialInterval
	b.MaxInterval = s.config.Retry.MaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(s.config.Retry.MaxAttempts-1)),
		ctx,
	)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("transient runtime error, retrying")
		if s.metrics != nil {
			s.metrics.DriverRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
		}
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Error().Err(err).Str("op", op).Msg("runtime call exceeded the operation timeout")
	}
	return &domain.RuntimeError{ID: id, Op: op, Attempts: attempts, Err: err}
}
