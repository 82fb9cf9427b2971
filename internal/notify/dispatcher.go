package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"spreadup-monitor/internal/metrics"
	"spreadup-monitor/internal/spread"
)

// dispatchDedupeWindow keeps delivery to one alert per symbol and spot
// venue per window, across all subscribers. This sits on top of the
// engine's per-base-asset cooldown, which stops different venue pairs
// of the same asset from alerting back to back.
const dispatchDedupeWindow = 60 * time.Second

// Dispatcher implements Sink. It drops repeats inside the dedupe
// window, then delivers to every subscriber in parallel, applying
// their filters; one subscriber's failure never blocks another.
type Dispatcher struct {
	registry Registry
	courier  Courier
	dedupe   *spread.Cooldown

	sent     atomic.Int64
	filtered atomic.Int64
	failed   atomic.Int64
	removed  atomic.Int64
}

// NewDispatcher wires a dispatcher to a registry and courier.
func NewDispatcher(registry Registry, courier Courier) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		courier:  courier,
		dedupe:   spread.NewCooldown(dispatchDedupeWindow),
	}
}

// Deliver fans one alert out to all current subscribers.
func (d *Dispatcher) Deliver(ctx context.Context, alert Alert) error {
	o := alert.Opportunity

	at := alert.SentAt
	if at.IsZero() {
		at = time.Now()
	}
	if !d.dedupe.MayEmit(o.Symbol+":"+string(o.SpotExchange), at) {
		return nil
	}
	// Alerts are rare enough to sweep stale dedupe keys inline.
	d.dedupe.Prune(at)

	subscribers := d.registry.Subscribers()
	if len(subscribers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, userID := range subscribers {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()

			if !d.registry.FiltersFor(userID).Accept(o) {
				d.filtered.Add(1)
				return
			}

			err := d.courier.Send(ctx, userID, alert)
			switch {
			case err == nil:
				d.sent.Add(1)
			case errors.Is(err, ErrSubscriberBlocked):
				d.registry.Remove(userID)
				d.removed.Add(1)
				log.Info().Int64("user_id", userID).Msg("Removed blocked subscriber")
			default:
				d.failed.Add(1)
				metrics.NotifyFailures.Inc()
				log.Warn().Err(err).Int64("user_id", userID).Msg("Alert delivery failed")
			}
		}(userID)
	}
	wg.Wait()
	return nil
}

// DispatchStats is a snapshot of delivery counters.
type DispatchStats struct {
	Sent     int64 `json:"sent"`
	Filtered int64 `json:"filtered"`
	Failed   int64 `json:"failed"`
	Removed  int64 `json:"removed"`
}

// Stats returns the delivery counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Sent:     d.sent.Load(),
		Filtered: d.filtered.Load(),
		Failed:   d.failed.Load(),
		Removed:  d.removed.Load(),
	}
}
