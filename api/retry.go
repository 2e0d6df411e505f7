package api

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// DefaultBackoff is the wait before each retry, three attempts in total
var DefaultBackoff = []time.Duration{500 * time.Millisecond, 2 * time.Second}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error that must not be retried
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, the error is permanent, the schedule runs out
// or ctx is done. The last error is returned unwrapped.
func Retry(ctx context.Context, backoff []time.Duration, fn func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= len(backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(lastErr, ctx.Err())
			case <-time.After(backoff[attempt-1]):
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return nil, pe.err
		}
		if !isTemporary(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func isTemporary(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	// anything that is not a status answer is a transport failure
	return true
}
