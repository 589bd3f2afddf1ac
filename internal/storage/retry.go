package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// urlIDConstraint guards researches.url_id. A collision there means the
// randomly generated id was taken and a fresh one should be tried.
const urlIDConstraint = "researches_url_id_key"

// Postgres SQLSTATE codes that WithRetry treats as transient.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// isRetriable reports whether err is a transient conflict: a serialization
// failure, a deadlock, or a research id collision.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	case codeUniqueViolation:
		return pgErr.ConstraintName == urlIDConstraint
	default:
		return false
	}
}

// WithRetry runs fn and retries it up to maxRetries more times while it fails
// with a retriable error, backing off exponentially from baseDelay.
// Any other error is returned immediately.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.MaxInterval = 50 * baseDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err != nil && !isRetriable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries+1)),
	)
	return err
}
