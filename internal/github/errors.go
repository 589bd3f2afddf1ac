package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	gh "github.com/google/go-github/v57/github"
)

var (
	// ErrUserNotFound is returned when the GitHub account does not exist.
	ErrUserNotFound = errors.New("github: user not found")
	// ErrNotFound is returned when a non-user resource (repository page) does not exist.
	ErrNotFound = errors.New("github: not found")
	// ErrRateLimited is returned when GitHub refuses the request for quota reasons.
	ErrRateLimited = errors.New("github: rate limit exceeded")
	// ErrNotAUser is returned when the account is an organization or bot.
	ErrNotAUser = errors.New("github: account is not a user")
)

// StatusError is a non-success HTTP status from the GitHub web frontend.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github: GET %s: status %d", e.URL, e.StatusCode)
}

// classify maps a failed call onto the package sentinels and marks which
// failures are worth retrying. ctx is the caller's context, not the per-call
// one, so a per-call deadline stays retryable while caller cancellation does not.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrRateLimited, err))
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		if d := abuseErr.GetRetryAfter(); d > 0 {
			return backoff.RetryAfter(int((d + time.Second - 1) / time.Second))
		}
		return err
	}

	status := 0
	var respErr *gh.ErrorResponse
	var statusErr *StatusError
	switch {
	case errors.As(err, &respErr) && respErr.Response != nil:
		status = respErr.Response.StatusCode
	case errors.As(err, &statusErr):
		status = statusErr.StatusCode
	}

	switch {
	case status == 0:
		// Transport failure or per-call timeout.
		return err
	case status == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrNotFound, err))
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrRateLimited, err))
	case status >= 500:
		return err
	default:
		return backoff.Permanent(err)
	}
}

// asUserError rewrites a generic not-found into ErrUserNotFound for calls
// addressed by username.
func asUserError(err error) error {
	if errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("%w: %v", ErrUserNotFound, err)
	}
	return err
}
