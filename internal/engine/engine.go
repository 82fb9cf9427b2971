// Package engine wires the connectors, the price cache, the spread
// calculator and the notification sink into one monitoring pipeline.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"spreadup-monitor/internal/cache"
	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/metrics"
	"spreadup-monitor/internal/notify"
	"spreadup-monitor/internal/spread"
)

// Loop defaults.
const (
	DefaultScanInterval   = time.Second
	DefaultErrorBackoff   = 5 * time.Second
	DefaultHealthInterval = 30 * time.Second
	DefaultTopN           = 5
)

// Config tunes the engine loops. Zero fields use the defaults above;
// SpreadThreshold and Cooldown fall back to their package defaults.
type Config struct {
	SpreadThreshold float64
	ScanInterval    time.Duration
	Cooldown        time.Duration
	ErrorBackoff    time.Duration
	HealthInterval  time.Duration
	TopN            int
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	return c
}

// Engine owns the monitoring pipeline: it routes connector updates
// into the cache, scans for opportunities on a fixed cadence and
// publishes the survivors of the cooldown to the sink.
type Engine struct {
	cfg      Config
	cache    *cache.PriceCache
	calc     *spread.Calculator
	cooldown *spread.Cooldown
	sink     notify.Sink

	mu         sync.Mutex
	connectors map[connector.ExchangeID]connector.Connector

	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	pricesReceived     atomic.Int64
	opportunitiesFound atomic.Int64
	alertsSent         atomic.Int64
	alertsSuppressed   atomic.Int64
	scanErrors         atomic.Int64

	lastMu   sync.RWMutex
	lastScan []spread.Opportunity
}

// New creates an engine over the given cache and sink.
func New(priceCache *cache.PriceCache, sink notify.Sink, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:        cfg,
		cache:      priceCache,
		calc:       spread.NewCalculator(priceCache, cfg.SpreadThreshold),
		cooldown:   spread.NewCooldown(cfg.Cooldown),
		sink:       sink,
		connectors: make(map[connector.ExchangeID]connector.Connector),
	}
}

// Register adds a connector and wires its updates into the cache.
// Connectors keep no reference back to the engine; they only see the
// update callback. Call before Start.
func (e *Engine) Register(c connector.Connector) {
	c.SetUpdateHandler(func(u connector.PriceUpdate) {
		e.pricesReceived.Add(1)
		e.cache.Update(u)
	})
	e.mu.Lock()
	e.connectors[c.ID()] = c
	e.mu.Unlock()
}

func (e *Engine) connectorList() []connector.Connector {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]connector.Connector, 0, len(e.connectors))
	for _, c := range e.connectors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Start initializes the registered connectors in parallel, starts the
// feeds of the healthy ones and launches the scan and health loops. It
// fails only when no connector comes up; partial failures are logged
// and skipped.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}

	conns := e.connectorList()
	if len(conns) == 0 {
		e.running.Store(false)
		return errors.New("no connectors registered")
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.startedAt = time.Now()

	type initResult struct {
		id  connector.ExchangeID
		err error
	}
	results := make(chan initResult, len(conns))
	for _, c := range conns {
		go func(c connector.Connector) {
			results <- initResult{c.ID(), c.Initialize(ctx)}
		}(c)
	}

	failed := make(map[connector.ExchangeID]bool)
	for range conns {
		r := <-results
		if r.err != nil {
			failed[r.id] = true
			log.Error().Err(r.err).Str("exchange", string(r.id)).Msg("Connector initialization failed")
		}
	}

	healthy := 0
	for _, c := range conns {
		if failed[c.ID()] {
			continue
		}
		if err := c.StartFeeds(ctx); err != nil {
			log.Error().Err(err).Str("exchange", string(c.ID())).Msg("Feed start failed")
			continue
		}
		healthy++
	}
	if healthy == 0 {
		e.running.Store(false)
		cancel()
		return errors.New("no connector started")
	}

	e.wg.Add(2)
	go e.scanLoop(ctx)
	go e.healthLoop(ctx)

	log.Info().
		Int("connectors", healthy).
		Float64("threshold", e.calc.Threshold()).
		Dur("scan_interval", e.cfg.ScanInterval).
		Msg("Engine started")
	return nil
}

func (e *Engine) scanLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		wait := e.cfg.ScanInterval
		if err := e.scanOnce(ctx); err != nil {
			e.scanErrors.Add(1)
			metrics.ScanErrors.Inc()
			log.Error().Err(err).Msg("Scan failed")
			wait = e.cfg.ErrorBackoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// scanOnce runs one detection pass: find and rank, gate the top
// opportunities through the per-base-asset cooldown, deliver the
// survivors and sweep the cache.
func (e *Engine) scanOnce(ctx context.Context) error {
	timer := metrics.NewTimer()
	opportunities := e.calc.FindOpportunities(nil)
	timer.Observe(metrics.ScanDuration)

	metrics.LastScanOpportunities.Set(float64(len(opportunities)))
	e.lastMu.Lock()
	e.lastScan = opportunities
	e.lastMu.Unlock()

	defer e.cache.EvictExpired()

	if len(opportunities) == 0 {
		return nil
	}
	e.opportunitiesFound.Add(int64(len(opportunities)))
	metrics.OpportunitiesFound.Add(float64(len(opportunities)))

	best := opportunities[0]
	metrics.RecordTopSpread(best.Symbol, string(best.SpotExchange), string(best.FuturesExchange), best.SpreadPercent)

	top := opportunities
	if len(top) > e.cfg.TopN {
		top = top[:e.cfg.TopN]
	}

	if data, err := json.Marshal(top); err == nil {
		if err := e.cache.MirrorTopList(ctx, data); err != nil {
			log.Debug().Err(err).Msg("Top list mirror failed")
		}
	}

	now := time.Now()
	var firstErr error
	for _, o := range top {
		if !e.cooldown.MayEmit(o.BaseAsset, now) {
			e.alertsSuppressed.Add(1)
			metrics.AlertsSuppressed.Inc()
			continue
		}
		if err := e.sink.Deliver(ctx, notify.NewAlert(o, now)); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("deliver %s: %w", o.BaseAsset, err)
			}
			continue
		}
		e.alertsSent.Add(1)
		metrics.AlertsSent.Inc()
		log.Info().
			Str("symbol", o.Symbol).
			Str("spot", string(o.SpotExchange)).
			Str("futures", string(o.FuturesExchange)).
			Float64("spread", o.SpreadPercent).
			Msg("Alert published")
	}
	return firstErr
}

func (e *Engine) healthLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cooldown.Prune(time.Now())
			e.logHealth()
		}
	}
}

func (e *Engine) logHealth() {
	for _, c := range e.connectorList() {
		s := c.Stats()
		states := c.FeedStates()
		log.Info().
			Str("exchange", string(c.ID())).
			Int64("ws_messages", s.WSMessages).
			Int64("rest_requests", s.RestRequests).
			Int64("errors", s.Errors).
			Int64("reconnects", s.Reconnects).
			Time("last_update", s.LastUpdate).
			Str("spot_feed", states[connector.Spot].String()).
			Str("futures_feed", states[connector.Futures].String()).
			Msg("Connector health")
	}
	cs := e.cache.Stats()
	log.Info().
		Int("entries", cs.Entries).
		Int64("updates", cs.Updates).
		Int64("prices_received", e.pricesReceived.Load()).
		Msg("Cache health")
}

// Stop shuts the engine down: loops first, then all connectors in
// parallel, then the cache. Safe to call more than once.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	var wg sync.WaitGroup
	for _, c := range e.connectorList() {
		wg.Add(1)
		go func(c connector.Connector) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Str("exchange", string(c.ID())).Msg("Connector close failed")
			}
		}(c)
	}
	wg.Wait()

	if err := e.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Cache close failed")
	}
	log.Info().Dur("uptime", time.Since(e.startedAt)).Msg("Engine stopped")
}

// Running reports whether the engine has started and not stopped.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// CurrentOpportunities returns a copy of the latest scan's results.
func (e *Engine) CurrentOpportunities() []spread.Opportunity {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	out := make([]spread.Opportunity, len(e.lastScan))
	copy(out, e.lastScan)
	return out
}

// ForceScan runs one scan pass immediately, outside the loop cadence,
// and returns the full result list.
func (e *Engine) ForceScan(ctx context.Context) ([]spread.Opportunity, error) {
	err := e.scanOnce(ctx)
	return e.CurrentOpportunities(), err
}

// ExchangeStatus is the health view of one connector.
type ExchangeStatus struct {
	Stats       connector.StatsSnapshot `json:"stats"`
	SpotFeed    string                  `json:"spot_feed"`
	FuturesFeed string                  `json:"futures_feed"`
}

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	Uptime             time.Duration                           `json:"uptime"`
	PricesReceived     int64                                   `json:"prices_received"`
	OpportunitiesFound int64                                   `json:"opportunities_found"`
	AlertsSent         int64                                   `json:"alerts_sent"`
	AlertsSuppressed   int64                                   `json:"alerts_suppressed"`
	ScanErrors         int64                                   `json:"scan_errors"`
	Cache              cache.Statistics                        `json:"cache"`
	Exchanges          map[connector.ExchangeID]ExchangeStatus `json:"exchanges"`
}

// Stats returns the current pipeline counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		PricesReceived:     e.pricesReceived.Load(),
		OpportunitiesFound: e.opportunitiesFound.Load(),
		AlertsSent:         e.alertsSent.Load(),
		AlertsSuppressed:   e.alertsSuppressed.Load(),
		ScanErrors:         e.scanErrors.Load(),
		Cache:              e.cache.Stats(),
		Exchanges:          make(map[connector.ExchangeID]ExchangeStatus),
	}
	if !e.startedAt.IsZero() {
		s.Uptime = time.Since(e.startedAt)
	}
	for _, c := range e.connectorList() {
		states := c.FeedStates()
		s.Exchanges[c.ID()] = ExchangeStatus{
			Stats:       c.Stats(),
			SpotFeed:    states[connector.Spot].String(),
			FuturesFeed: states[connector.Futures].String(),
		}
	}
	return s
}

// Status is the condensed view the chat layer shows on demand.
type Status struct {
	Running bool                 `json:"running"`
	Top     []spread.Opportunity `json:"top"`
}

// Status returns the running flag and the best current opportunities.
func (e *Engine) Status() Status {
	top := e.CurrentOpportunities()
	if len(top) > e.cfg.TopN {
		top = top[:e.cfg.TopN]
	}
	return Status{Running: e.running.Load(), Top: top}
}
