package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrSubscriberBlocked marks a delivery refused on the subscriber's
// side; the dispatcher drops them from the registry.
var ErrSubscriberBlocked = errors.New("subscriber blocked the bot")

// Courier performs the actual per-subscriber delivery.
type Courier interface {
	Send(ctx context.Context, userID int64, alert Alert) error
}

// LogCourier logs alerts instead of delivering them, for running the
// monitor without a chat transport attached.
type LogCourier struct{}

// Send logs the alert at info level.
func (LogCourier) Send(ctx context.Context, userID int64, alert Alert) error {
	o := alert.Opportunity
	log.Info().
		Int64("user_id", userID).
		Str("symbol", o.Symbol).
		Str("spot_exchange", string(o.SpotExchange)).
		Float64("spot_price", o.SpotPrice).
		Str("futures_exchange", string(o.FuturesExchange)).
		Float64("futures_price", o.FuturesPrice).
		Float64("spread_percent", o.SpreadPercent).
		Str("spot_url", o.SpotURL()).
		Str("futures_url", o.FuturesURL()).
		Msg("Spread alert")
	return nil
}
