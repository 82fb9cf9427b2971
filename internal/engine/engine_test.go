package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spreadup-monitor/internal/cache"
	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/notify"
)

type fakeConnector struct {
	id       connector.ExchangeID
	initErr  error
	startErr error
	handler  connector.UpdateHandler
	inited   atomic.Bool
	started  atomic.Bool
	closed   atomic.Bool
}

func (f *fakeConnector) ID() connector.ExchangeID { return f.id }

func (f *fakeConnector) Initialize(ctx context.Context) error {
	f.inited.Store(true)
	return f.initErr
}

func (f *fakeConnector) StartFeeds(ctx context.Context) error {
	f.started.Store(true)
	return f.startErr
}

func (f *fakeConnector) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeConnector) SnapshotSpot(ctx context.Context) (map[string]connector.Quote, error) {
	return nil, nil
}

func (f *fakeConnector) SnapshotFutures(ctx context.Context) (map[string]connector.Quote, error) {
	return nil, nil
}

func (f *fakeConnector) CommonSymbols() []string { return nil }

func (f *fakeConnector) SetUpdateHandler(h connector.UpdateHandler) { f.handler = h }

func (f *fakeConnector) Stats() connector.StatsSnapshot { return connector.StatsSnapshot{} }

func (f *fakeConnector) FeedStates() map[connector.MarketKind]connector.FeedState {
	return map[connector.MarketKind]connector.FeedState{
		connector.Spot:    connector.FeedStreaming,
		connector.Futures: connector.FeedStreaming,
	}
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
}

func (s *recordingSink) Deliver(ctx context.Context, alert notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *recordingSink) delivered() []notify.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

func seedPair(c *cache.PriceCache, symbol string, spotPrice, futuresPrice float64) {
	now := time.Now()
	c.Update(connector.PriceUpdate{
		Exchange: connector.MEXC, Market: connector.Spot,
		Symbol: symbol, Price: spotPrice, Timestamp: now,
	})
	c.Update(connector.PriceUpdate{
		Exchange: connector.GateIO, Market: connector.Futures,
		Symbol: symbol, Price: futuresPrice, Timestamp: now,
	})
}

func TestForceScanDetectsAndDelivers(t *testing.T) {
	priceCache := cache.New(time.Minute)
	sink := &recordingSink{}
	e := New(priceCache, sink, Config{SpreadThreshold: 3.0})

	seedPair(priceCache, "BTCUSDT", 30000, 31200) // 4%
	seedPair(priceCache, "XRPUSDT", 0.5, 0.505)   // 1%, below threshold

	opportunities, err := e.ForceScan(context.Background())
	require.NoError(t, err)
	require.Len(t, opportunities, 1)
	assert.Equal(t, "BTCUSDT", opportunities[0].Symbol)
	assert.Equal(t, 4.0, opportunities[0].SpreadPercent)

	alerts := sink.delivered()
	require.Len(t, alerts, 1)
	assert.Equal(t, notify.AlertKindSpread, alerts[0].Kind)
	assert.Equal(t, "BTCUSDT", alerts[0].Opportunity.Symbol)

	stats := e.Stats()
	assert.Equal(t, int64(1), stats.OpportunitiesFound)
	assert.Equal(t, int64(1), stats.AlertsSent)
	assert.Equal(t, int64(0), stats.AlertsSuppressed)
}

func TestCooldownSuppressesRepeatAlerts(t *testing.T) {
	priceCache := cache.New(time.Minute)
	sink := &recordingSink{}
	e := New(priceCache, sink, Config{Cooldown: time.Hour})

	seedPair(priceCache, "ETHUSDT", 2000, 2100)

	_, err := e.ForceScan(context.Background())
	require.NoError(t, err)
	_, err = e.ForceScan(context.Background())
	require.NoError(t, err)

	assert.Len(t, sink.delivered(), 1)
	stats := e.Stats()
	assert.Equal(t, int64(1), stats.AlertsSent)
	assert.Equal(t, int64(1), stats.AlertsSuppressed)
}

func TestScanDeliversTopFiveOnly(t *testing.T) {
	priceCache := cache.New(time.Minute)
	sink := &recordingSink{}
	e := New(priceCache, sink, Config{})

	for i := 0; i < 7; i++ {
		symbol := fmt.Sprintf("AST%dUSDT", i)
		spread := 4.0 + float64(i) // 4%..10%
		seedPair(priceCache, symbol, 100, 100*(1+spread/100))
	}

	opportunities, err := e.ForceScan(context.Background())
	require.NoError(t, err)
	assert.Len(t, opportunities, 7)

	alerts := sink.delivered()
	require.Len(t, alerts, 5)
	// Best spread first.
	assert.Equal(t, "AST6USDT", alerts[0].Opportunity.Symbol)
	assert.Equal(t, "AST2USDT", alerts[4].Opportunity.Symbol)
	// Entries below the cut never reach the cooldown.
	assert.Equal(t, int64(0), e.Stats().AlertsSuppressed)
}

func TestDifferentBasesAlertIndependently(t *testing.T) {
	priceCache := cache.New(time.Minute)
	sink := &recordingSink{}
	e := New(priceCache, sink, Config{})

	seedPair(priceCache, "BTCUSDT", 30000, 31500)
	_, err := e.ForceScan(context.Background())
	require.NoError(t, err)

	// A new base asset is not blocked by BTC's cooldown.
	seedPair(priceCache, "SOLUSDT", 100, 105)
	_, err = e.ForceScan(context.Background())
	require.NoError(t, err)

	alerts := sink.delivered()
	require.Len(t, alerts, 2)
	assert.Equal(t, "SOLUSDT", alerts[1].Opportunity.Symbol)
}

func TestDeliveryErrorSurfacesFromScan(t *testing.T) {
	priceCache := cache.New(time.Minute)
	sink := &recordingSink{err: errors.New("courier down")}
	e := New(priceCache, sink, Config{})

	seedPair(priceCache, "BTCUSDT", 30000, 31500)

	_, err := e.ForceScan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "courier down")
	assert.Equal(t, int64(0), e.Stats().AlertsSent)
}

func TestStartFailsWhenNoConnectorComesUp(t *testing.T) {
	priceCache := cache.New(time.Minute)
	e := New(priceCache, &recordingSink{}, Config{ScanInterval: time.Hour})
	e.Register(&fakeConnector{id: connector.MEXC, initErr: errors.New("boom")})

	err := e.Start(context.Background())
	require.Error(t, err)
	assert.False(t, e.Running())
}

func TestStartSkipsFailedConnector(t *testing.T) {
	priceCache := cache.New(time.Minute)
	e := New(priceCache, &recordingSink{}, Config{ScanInterval: time.Hour})

	bad := &fakeConnector{id: connector.MEXC, initErr: errors.New("boom")}
	good := &fakeConnector{id: connector.HTX}
	e.Register(bad)
	e.Register(good)

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	assert.True(t, e.Running())
	assert.True(t, good.started.Load())
	assert.False(t, bad.started.Load())
}

func TestRegisteredUpdatesFlowIntoCache(t *testing.T) {
	priceCache := cache.New(time.Minute)
	e := New(priceCache, &recordingSink{}, Config{})

	c := &fakeConnector{id: connector.BingX}
	e.Register(c)
	require.NotNil(t, c.handler)

	c.handler(connector.PriceUpdate{
		Exchange: connector.BingX, Market: connector.Spot,
		Symbol: "BTCUSDT", Price: 30000, Timestamp: time.Now(),
	})

	_, ok := priceCache.Get(connector.BingX, connector.Spot, "BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, int64(1), e.Stats().PricesReceived)
}

func TestStopClosesConnectors(t *testing.T) {
	priceCache := cache.New(time.Minute)
	e := New(priceCache, &recordingSink{}, Config{ScanInterval: time.Hour})

	a := &fakeConnector{id: connector.MEXC}
	b := &fakeConnector{id: connector.HTX}
	e.Register(a)
	e.Register(b)

	require.NoError(t, e.Start(context.Background()))
	e.Stop()
	e.Stop() // idempotent

	assert.False(t, e.Running())
	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
}

func TestHealthLoopPrunesCooldown(t *testing.T) {
	priceCache := cache.New(time.Minute)
	e := New(priceCache, &recordingSink{}, Config{
		ScanInterval:   time.Hour,
		Cooldown:       20 * time.Millisecond,
		HealthInterval: 10 * time.Millisecond,
	})
	e.Register(&fakeConnector{id: connector.MEXC})
	seedPair(priceCache, "BTCUSDT", 30000, 31500)

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	_, err := e.ForceScan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, e.cooldown.Len())

	// Once the window passes, the health loop drops the stale entry.
	assert.Eventually(t, func() bool { return e.cooldown.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStatusReportsTopOpportunities(t *testing.T) {
	priceCache := cache.New(time.Minute)
	e := New(priceCache, &recordingSink{}, Config{})

	seedPair(priceCache, "BTCUSDT", 30000, 31500)
	_, err := e.ForceScan(context.Background())
	require.NoError(t, err)

	status := e.Status()
	assert.False(t, status.Running)
	require.Len(t, status.Top, 1)
	assert.Equal(t, "BTCUSDT", status.Top[0].Symbol)
}
