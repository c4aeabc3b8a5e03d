/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package publish

import (
	"math/rand"
	"time"
)

// RetryPolicy bounds retries of transient upload failures. The zero value is
// not usable; use DefaultRetryPolicy as a starting point.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultRetryPolicy matches the dispatcher defaults: five attempts with
// exponential backoff starting at two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: 2 * time.Second,
	}
}

// Backoff returns the delay before the given retry. attempt is zero-based:
// attempt 0 is the delay after the first failure. Exponential with +/- 20%
// jitter to avoid synchronized retries.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	base := p.BaseBackoff * time.Duration(1<<attempt)
	jitter := 0.8 + (rand.Float64() * 0.4)
	return time.Duration(float64(base) * jitter)
}

// Exhausted reports whether no further attempt is allowed after `attempts`
// completed attempts.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
