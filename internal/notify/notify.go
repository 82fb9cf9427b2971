// Package notify fans detected opportunities out to chat subscribers.
// The chat transport itself stays behind the Courier interface.
package notify

import (
	"context"
	"time"

	"spreadup-monitor/internal/filter"
	"spreadup-monitor/internal/spread"
)

// AlertKindSpread is the only alert kind the engine emits today.
const AlertKindSpread = "spread_detected"

// Alert wraps one opportunity for delivery.
type Alert struct {
	Kind        string             `json:"kind"`
	Opportunity spread.Opportunity `json:"opportunity"`
	SentAt      time.Time          `json:"sent_at"`
}

// NewAlert builds a spread alert stamped at now.
func NewAlert(o spread.Opportunity, now time.Time) Alert {
	return Alert{Kind: AlertKindSpread, Opportunity: o, SentAt: now}
}

// Sink receives the opportunities that survive the engine's cooldown.
type Sink interface {
	Deliver(ctx context.Context, alert Alert) error
}

// Registry answers who subscribes and with what filters. The chat
// layer owns the data behind it.
type Registry interface {
	// Subscribers returns the current subscriber ids.
	Subscribers() []int64

	// FiltersFor returns the subscriber's alert filters.
	FiltersFor(userID int64) filter.UserFilters

	// Remove drops a subscriber, e.g. after they blocked the bot.
	Remove(userID int64)
}
