// Package ratelimit provides per-operation token buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"orgsafe/pkg/fileops"
)

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed bool
	// ResetIn is how long until a token is available again. Zero when Allowed.
	ResetIn time.Duration
}

// ResetInSeconds rounds ResetIn up to whole seconds.
func (d Decision) ResetInSeconds() int {
	return int(math.Ceil(d.ResetIn.Seconds()))
}

// Checker is what services depend on.
type Checker interface {
	CheckLimit(operation string) Decision
}

// Limiter keeps one token bucket per operation name. Buckets are created on
// first use with the shared rate and burst.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

// New creates a limiter allowing perSecond operations per second with the
// given burst, independently for each operation name.
func New(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

func (l *Limiter) bucket(operation string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[operation]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[operation] = b
	}
	return b
}

// CheckLimit consumes a token for operation if one is available.
func (l *Limiter) CheckLimit(operation string) Decision {
	b := l.bucket(operation)
	now := l.now()

	if b.AllowN(now, 1) {
		return Decision{Allowed: true}
	}

	r := b.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, ResetIn: time.Second}
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return Decision{Allowed: false, ResetIn: delay}
}

// Enforce converts a denied decision into a KindRateLimited error.
func Enforce(c Checker, operation, path string) error {
	if c == nil {
		return nil
	}
	d := c.CheckLimit(operation)
	if d.Allowed {
		return nil
	}
	err := fileops.NewError(fileops.KindRateLimited, operation, path, "too many requests")
	err.RetryAfter = d.ResetIn
	return err.WithHint("retry after " + d.ResetIn.Round(time.Millisecond).String())
}

// Unlimited never denies. Useful in tests and for trusted callers.
type Unlimited struct{}

func (Unlimited) CheckLimit(string) Decision { return Decision{Allowed: true} }
