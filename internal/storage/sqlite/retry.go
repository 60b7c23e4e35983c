package sqlite

import (
	"math/rand/v2"
	"strings"
	"time"
)

const (
	retryMaxAttempts = 7
	retryBaseDelay   = 50 * time.Millisecond
	retryJitterPct   = 0.25
)

// retryOnLocked retries fn with exponential backoff and jitter while it
// keeps failing with sqlite's "database is locked". Any other error is
// returned as-is.
func retryOnLocked(fn func() error) error {
	return retryOnLockedSleep(fn, time.Sleep)
}

func retryOnLockedSleep(fn func() error, sleepFn func(time.Duration)) error {
	err := fn()
	if err == nil || !isLocked(err) {
		return err
	}
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		delay := retryBaseDelay * (1 << (attempt - 1))
		jitter := time.Duration(float64(delay) * rand.Float64() * retryJitterPct)
		sleepFn(delay + jitter)

		err = fn()
		if err == nil || !isLocked(err) {
			return err
		}
	}
	return err
}

func isLocked(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}
