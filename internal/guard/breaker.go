package guard

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"spreadup-monitor/internal/metrics"
)

// Breaker trip parameters.
const (
	DefaultFailureThreshold = 5
	DefaultOpenWindow       = 30 * time.Second
)

// StatusError is a non-2xx REST response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// Trips reports whether err counts against the circuit breaker. Network
// failures, 5xx responses and 429 trip it; other client errors are
// terminal and do not.
func Trips(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return true
}

// IsOpen reports whether err means the breaker rejected the call without
// running it.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Breaker wraps gobreaker for one venue: it opens after a run of
// consecutive tripping failures, stays open for the cooldown window and
// admits a single probe when half-open.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker named after the venue it protects.
func NewBreaker(name string, threshold uint32, openWindow time.Duration) *Breaker {
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}
	if openWindow <= 0 {
		openWindow = DefaultOpenWindow
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !Trips(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1.0
			}
			metrics.BreakerOpen.WithLabelValues(name).Set(open)
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn under the breaker and returns its error, or the
// breaker's rejection error when open.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
