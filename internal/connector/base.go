package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"spreadup-monitor/internal/guard"
	"spreadup-monitor/internal/metrics"
)

// HTTP pool and timeout settings shared by all venues.
const (
	httpTimeout        = 10 * time.Second
	httpConnectTimeout = 5 * time.Second
	httpKeepAlive      = 30 * time.Second
	httpMaxIdleConns   = 100
	httpMaxPerHost     = 20
)

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: httpTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   httpConnectTimeout,
				KeepAlive: httpKeepAlive,
			}).DialContext,
			MaxIdleConns:        httpMaxIdleConns,
			MaxIdleConnsPerHost: httpMaxPerHost,
			MaxConnsPerHost:     httpMaxPerHost,
			IdleConnTimeout:     httpKeepAlive,
			TLSHandshakeTimeout: httpConnectTimeout,
		},
	}
}

// BaseConnector provides the shared behavior of all venue connectors:
// guarded REST access, symbol registries, update dispatch, counters
// and the feed supervision loop.
type BaseConnector struct {
	id  ExchangeID
	cfg Config

	httpClient *http.Client
	limiter    *guard.RateLimiter
	breaker    *guard.Breaker

	handlerMu sync.RWMutex
	handler   UpdateHandler

	symbolsMu      sync.RWMutex
	spotSymbols    map[string]struct{}
	futuresSymbols map[string]struct{}

	spotState    atomic.Int32
	futuresState atomic.Int32

	stats Stats

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBaseConnector creates the shared connector core for one venue
func NewBaseConnector(id ExchangeID, cfg Config) *BaseConnector {
	cfg = cfg.withDefaults()
	return &BaseConnector{
		id:             id,
		cfg:            cfg,
		httpClient:     newHTTPClient(),
		limiter:        guard.NewRateLimiter(cfg.RestRate, cfg.RestBurst),
		breaker:        guard.NewBreaker(string(id), guard.DefaultFailureThreshold, guard.DefaultOpenWindow),
		spotSymbols:    make(map[string]struct{}),
		futuresSymbols: make(map[string]struct{}),
		done:           make(chan struct{}),
	}
}

// ID returns the exchange ID
func (c *BaseConnector) ID() ExchangeID {
	return c.id
}

// Config returns the connector settings with defaults applied
func (c *BaseConnector) Config() Config {
	return c.cfg
}

// ShuttingDown reports whether Close has begun
func (c *BaseConnector) ShuttingDown() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// ReconnectWait returns the delay between feed redials
func (c *BaseConnector) ReconnectWait() time.Duration {
	return c.cfg.ReconnectWait
}

// Done is closed when the connector shuts down
func (c *BaseConnector) Done() <-chan struct{} {
	return c.done
}

// SetUpdateHandler sets the callback for accepted price updates
func (c *BaseConnector) SetUpdateHandler(handler UpdateHandler) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

// Emit dispatches an accepted update to the handler
func (c *BaseConnector) Emit(u PriceUpdate) {
	c.stats.MarkUpdate(u.Timestamp)
	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(u)
	}
}

// CountMessage records one received feed message
func (c *BaseConnector) CountMessage(market MarketKind) {
	c.stats.IncMessage()
	metrics.RecordWSMessage(string(c.id), string(market))
}

// CountParseDrop records a feed message dropped as unparseable
func (c *BaseConnector) CountParseDrop(market MarketKind) {
	metrics.RecordParseError(string(c.id), string(market))
}

// CountError records a connector error
func (c *BaseConnector) CountError(kind string) {
	c.stats.IncError()
	metrics.RecordConnectorError(string(c.id), kind)
}

// Stats returns a snapshot of the connector counters
func (c *BaseConnector) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// SetSymbols replaces the known-symbol set for one market
func (c *BaseConnector) SetSymbols(market MarketKind, symbols []string) {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	c.symbolsMu.Lock()
	if market == Spot {
		c.spotSymbols = set
	} else {
		c.futuresSymbols = set
	}
	c.symbolsMu.Unlock()
}

// Known reports whether a canonical symbol was discovered on a market
func (c *BaseConnector) Known(market MarketKind, symbol string) bool {
	c.symbolsMu.RLock()
	defer c.symbolsMu.RUnlock()
	if market == Spot {
		_, ok := c.spotSymbols[symbol]
		return ok
	}
	_, ok := c.futuresSymbols[symbol]
	return ok
}

// SymbolCount returns the number of known symbols on a market
func (c *BaseConnector) SymbolCount(market MarketKind) int {
	c.symbolsMu.RLock()
	defer c.symbolsMu.RUnlock()
	if market == Spot {
		return len(c.spotSymbols)
	}
	return len(c.futuresSymbols)
}

// CommonSymbols returns the sorted symbols present on both markets
func (c *BaseConnector) CommonSymbols() []string {
	c.symbolsMu.RLock()
	defer c.symbolsMu.RUnlock()

	common := make([]string, 0, len(c.spotSymbols))
	for s := range c.spotSymbols {
		if _, ok := c.futuresSymbols[s]; ok {
			common = append(common, s)
		}
	}
	sort.Strings(common)
	return common
}

// SetFeedState records a feed lifecycle transition
func (c *BaseConnector) SetFeedState(market MarketKind, state FeedState) {
	if market == Spot {
		c.spotState.Store(int32(state))
	} else {
		c.futuresState.Store(int32(state))
	}
	metrics.RecordFeedUp(string(c.id), string(market), state == FeedStreaming)
}

// FeedState returns the current state of one market feed
func (c *BaseConnector) FeedState(market MarketKind) FeedState {
	if market == Spot {
		return FeedState(c.spotState.Load())
	}
	return FeedState(c.futuresState.Load())
}

// FeedStates returns the current state of both market feeds
func (c *BaseConnector) FeedStates() map[MarketKind]FeedState {
	return map[MarketKind]FeedState{
		Spot:    c.FeedState(Spot),
		Futures: c.FeedState(Futures),
	}
}

// StartFeed launches the supervised loop for one market feed. The
// session function owns a single connection from dial to disconnect;
// each time it returns the supervisor counts a reconnect, waits
// ReconnectWait and redials, until Close or context cancellation.
func (c *BaseConnector) StartFeed(ctx context.Context, market MarketKind, session func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.SetFeedState(market, FeedClosed)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			default:
			}

			c.SetFeedState(market, FeedConnecting)
			err := session(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				c.SetFeedState(market, FeedError)
				c.CountError("feed")
				log.Warn().
					Err(err).
					Str("exchange", string(c.id)).
					Str("market", string(market)).
					Msg("Feed session ended")
			} else {
				c.SetFeedState(market, FeedDisconnected)
			}

			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			default:
			}

			c.stats.IncReconnect()
			metrics.RecordReconnect(string(c.id), string(market))

			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(c.cfg.ReconnectWait):
			}
		}
	}()
}

// Shutdown stops the feed supervisors and waits for them to exit.
// Safe to call more than once.
func (c *BaseConnector) Shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

// GetJSON performs a guarded GET against a venue REST endpoint and
// decodes the JSON response into out. Rate limiting applies before the
// call; the circuit breaker sees network failures, 5xx and 429 but not
// decode errors.
func (c *BaseConnector) GetJSON(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", c.id, err)
	}

	full := rawURL
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	var body []byte
	err := c.breaker.Execute(func() error {
		timer := metrics.NewTimer()
		defer timer.ObserveDuration(metrics.RestDuration, string(c.id))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return err
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("X-API-KEY", c.cfg.APIKey)
		}

		c.stats.IncRest()
		metrics.RestRequests.WithLabelValues(string(c.id)).Inc()

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &guard.StatusError{Status: resp.StatusCode, Body: truncate(data, 256)}
		}
		body = data
		return nil
	})
	if err != nil {
		metrics.RestErrors.WithLabelValues(string(c.id)).Inc()
		c.stats.IncError()
		return fmt.Errorf("%s: GET %s: %w", c.id, rawURL, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", c.id, rawURL, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
