// Package htx implements the HTX connector. HTX runs without
// websockets here: both feeds poll REST snapshots on a short cadence
// and emit the quotes as price updates.
package htx

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"spreadup-monitor/internal/connector"
)

// Production endpoints.
const (
	defaultSpotRestURL    = "https://api.htx.com"
	defaultFuturesRestURL = "https://api.hbdm.com"
)

// popularBases is the working set for the per-base futures kline
// probes; the venue has no bulk futures ticker endpoint.
var popularBases = []string{
	"BTC", "ETH", "BNB", "SOL", "XRP", "DOGE", "ADA", "AVAX",
	"MATIC", "DOT", "LINK", "UNI", "ATOM", "LTC", "BCH", "TRX",
	"ARB", "OP", "APT", "NEAR", "FTM", "INJ", "SUI", "SEI",
}

// Connector is the HTX implementation of connector.Connector.
type Connector struct {
	*connector.BaseConnector
}

// New creates an HTX connector. Zero config fields fall back to the
// production endpoints and the shared defaults.
func New(cfg connector.Config) *Connector {
	if cfg.SpotRestURL == "" {
		cfg.SpotRestURL = defaultSpotRestURL
	}
	if cfg.FuturesRestURL == "" {
		cfg.FuturesRestURL = defaultFuturesRestURL
	}
	return &Connector{BaseConnector: connector.NewBaseConnector(connector.HTX, cfg)}
}

// Initialize discovers the tradable symbols on both markets.
func (c *Connector) Initialize(ctx context.Context) error {
	spot, err := c.fetchSpotSymbols(ctx)
	if err != nil {
		return fmt.Errorf("htx: spot symbols: %w", err)
	}
	futures, err := c.fetchFuturesSymbols(ctx)
	if err != nil {
		return fmt.Errorf("htx: futures symbols: %w", err)
	}
	c.SetSymbols(connector.Spot, spot)
	c.SetSymbols(connector.Futures, futures)

	log.Info().
		Str("exchange", "htx").
		Int("spot", len(spot)).
		Int("futures", len(futures)).
		Int("common", len(c.CommonSymbols())).
		Msg("Symbols discovered")
	return nil
}

// StartFeeds launches the two polling loops. They run under the same
// supervision as websocket feeds: a failed cycle ends the session and
// the supervisor redials after the reconnect wait.
func (c *Connector) StartFeeds(ctx context.Context) error {
	c.StartFeed(ctx, connector.Spot, c.runSpotPoll)
	c.StartFeed(ctx, connector.Futures, c.runFuturesPoll)
	return nil
}

// Close stops the polling loops and waits for them to exit.
func (c *Connector) Close() error {
	c.Shutdown()
	return nil
}

func (c *Connector) runSpotPoll(ctx context.Context) error {
	return c.poll(ctx, connector.Spot, c.SnapshotSpot)
}

func (c *Connector) runFuturesPoll(ctx context.Context) error {
	return c.poll(ctx, connector.Futures, c.SnapshotFutures)
}

func (c *Connector) poll(ctx context.Context, market connector.MarketKind, snapshot func(context.Context) (map[string]connector.Quote, error)) error {
	cfg := c.Config()
	c.SetFeedState(market, connector.FeedSubscribing)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	streaming := false
	for {
		quotes, err := snapshot(ctx)
		if err != nil {
			if c.ShuttingDown() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("htx: %s poll: %w", market, err)
		}
		c.CountMessage(market)
		if !streaming && len(quotes) > 0 {
			c.SetFeedState(market, connector.FeedStreaming)
			streaming = true
		}

		now := time.Now().UTC()
		for symbol, q := range quotes {
			c.Emit(connector.PriceUpdate{
				Exchange:  connector.HTX,
				Market:    market,
				Symbol:    symbol,
				Price:     q.Price,
				Volume24h: q.Volume24h,
				Timestamp: now,
			})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case <-ticker.C:
		}
	}
}
