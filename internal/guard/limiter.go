// Package guard provides the outbound REST protections shared by all
// exchange connectors: a token-bucket rate limiter and a circuit breaker.
package guard

import (
	"context"

	"golang.org/x/time/rate"
)

// Default REST protection parameters.
const (
	DefaultRate  = 10.0
	DefaultBurst = 20
)

// RateLimiter is a token-bucket limiter for outbound REST calls.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter creates a limiter refilling at rps tokens per second
// with the given bucket capacity.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or the context is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// Allow reports whether a token is immediately available and consumes
// it when so.
func (l *RateLimiter) Allow() bool {
	return l.lim.Allow()
}

// Tokens returns the number of tokens currently available.
func (l *RateLimiter) Tokens() float64 {
	return l.lim.Tokens()
}
