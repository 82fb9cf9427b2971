package mexc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spreadup-monitor/internal/connector"
)

func testConnector() *Connector {
	c := New(connector.Config{RestRate: 1000, RestBurst: 1000})
	c.SetSymbols(connector.Spot, []string{"BTCUSDT", "ETHUSDT"})
	c.SetSymbols(connector.Futures, []string{"BTCUSDT", "ETHUSDT"})
	return c
}

func TestParseSpotMessage(t *testing.T) {
	c := testConnector()

	u, ok := c.parseSpotMessage([]byte(`{"d":{"s":"BTCUSDT","c":"30000.12"},"t":1700000000000}`))
	require.True(t, ok)
	assert.Equal(t, connector.MEXC, u.Exchange)
	assert.Equal(t, connector.Spot, u.Market)
	assert.Equal(t, "BTCUSDT", u.Symbol)
	assert.Equal(t, 30000.12, u.Price)
	assert.True(t, u.Latency > 0)

	// Unknown symbol, non-positive price, missing fields, garbage.
	_, ok = c.parseSpotMessage([]byte(`{"d":{"s":"DOGEUSDT","c":"0.1"}}`))
	assert.False(t, ok)
	_, ok = c.parseSpotMessage([]byte(`{"d":{"s":"BTCUSDT","c":"0"}}`))
	assert.False(t, ok)
	_, ok = c.parseSpotMessage([]byte(`{"d":{"s":"BTCUSDT","c":"-5"}}`))
	assert.False(t, ok)
	_, ok = c.parseSpotMessage([]byte(`{"d":{}}`))
	assert.False(t, ok)
	_, ok = c.parseSpotMessage([]byte(`not json`))
	assert.False(t, ok)
}

func TestParseFuturesMessage(t *testing.T) {
	c := testConnector()

	u, ok := c.parseFuturesMessage([]byte(`{"channel":"push.ticker","data":{"symbol":"BTC_USDT","lastPrice":30500.5,"amount24":1.2e8}}`))
	require.True(t, ok)
	assert.Equal(t, connector.Futures, u.Market)
	assert.Equal(t, "BTCUSDT", u.Symbol)
	assert.Equal(t, 30500.5, u.Price)
	require.NotNil(t, u.Volume24h)
	assert.Equal(t, 1.2e8, *u.Volume24h)

	// lastPrice may arrive as a string.
	u, ok = c.parseFuturesMessage([]byte(`{"channel":"push.ticker","data":{"symbol":"ETH_USDT","lastPrice":"2000.5"}}`))
	require.True(t, ok)
	assert.Equal(t, 2000.5, u.Price)
	assert.Nil(t, u.Volume24h)

	_, ok = c.parseFuturesMessage([]byte(`{"channel":"push.depth","data":{"symbol":"BTC_USDT"}}`))
	assert.False(t, ok)
	_, ok = c.parseFuturesMessage([]byte(`{"channel":"push.ticker","data":{"symbol":"XYZ_USDT","lastPrice":1}}`))
	assert.False(t, ok)
}

func TestIsControl(t *testing.T) {
	assert.True(t, isControl([]byte(`{"id":0,"code":0,"msg":"spot@miniTicker"}`)))
	assert.True(t, isControl([]byte(`{"msg":"PONG"}`)))
	assert.True(t, isControl([]byte(`{"channel":"pong","data":1700000000}`)))
	assert.True(t, isControl([]byte(`{"channel":"rs.sub.ticker"}`)))
	assert.False(t, isControl([]byte(`{"channel":"push.ticker","data":{}}`)))
	assert.False(t, isControl([]byte(`{"d":{"s":"BTCUSDT","c":"1"}}`)))
}

func TestInitializeDiscoversSymbols(t *testing.T) {
	spot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"ENABLED"},
			{"symbol":"ETHUSDT","status":"1"},
			{"symbol":"OLDUSDT","status":"DISABLED"}
		]}`))
	}))
	defer spot.Close()

	futures := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/contract/detail", r.URL.Path)
		w.Write([]byte(`{"data":[
			{"symbol":"BTC_USDT","state":0},
			{"symbol":"DEAD_USDT","state":2}
		]}`))
	}))
	defer futures.Close()

	c := New(connector.Config{SpotRestURL: spot.URL, FuturesRestURL: futures.URL, RestRate: 1000, RestBurst: 1000})
	require.NoError(t, c.Initialize(context.Background()))

	assert.Equal(t, 2, c.SymbolCount(connector.Spot))
	assert.Equal(t, 1, c.SymbolCount(connector.Futures))
	assert.Equal(t, []string{"BTCUSDT"}, c.CommonSymbols())
}

func TestSnapshots(t *testing.T) {
	spot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"30000.5","quoteVolume":"100000000"},
			{"symbol":"ETHUSDT","lastPrice":"0","quoteVolume":"1"},
			{"symbol":"XYZUSDT","lastPrice":"1","quoteVolume":"1"}
		]`))
	}))
	defer spot.Close()

	futures := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"symbol":"BTC_USDT","lastPrice":30500.5,"amount24":5e7},
			{"symbol":"XYZ_USDT","lastPrice":2}
		]}`))
	}))
	defer futures.Close()

	c := New(connector.Config{SpotRestURL: spot.URL, FuturesRestURL: futures.URL, RestRate: 1000, RestBurst: 1000})
	c.SetSymbols(connector.Spot, []string{"BTCUSDT", "ETHUSDT"})
	c.SetSymbols(connector.Futures, []string{"BTCUSDT"})

	quotes, err := c.SnapshotSpot(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 30000.5, quotes["BTCUSDT"].Price)
	require.NotNil(t, quotes["BTCUSDT"].Volume24h)
	assert.Equal(t, 1e8, *quotes["BTCUSDT"].Volume24h)

	quotes, err = c.SnapshotFutures(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 30500.5, quotes["BTCUSDT"].Price)
}

// wsServer upgrades one connection, records the subscribe message and
// plays back the given frames.
func wsServer(t *testing.T, frames []string, gotSub *string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	var once sync.Once
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		once.Do(func() {
			_, msg, err := conn.ReadMessage()
			if err == nil {
				*gotSub = string(msg)
			}
			for _, f := range frames {
				conn.WriteMessage(websocket.TextMessage, []byte(f))
			}
		})
		// Hold the socket open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
}

func TestSpotSessionEmitsUpdates(t *testing.T) {
	var gotSub string
	srv := wsServer(t, []string{
		`{"id":0,"code":0,"msg":"spot@miniTicker"}`,
		`{"d":{"s":"BTCUSDT","c":"30000.5"}}`,
		`{"d":{"s":"ETHUSDT","c":"broken"}}`,
	}, &gotSub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(connector.Config{SpotWSURL: wsURL, FuturesWSURL: wsURL, RestRate: 1000, RestBurst: 1000})
	c.SetSymbols(connector.Spot, []string{"BTCUSDT", "ETHUSDT"})

	updates := make(chan connector.PriceUpdate, 8)
	c.SetUpdateHandler(func(u connector.PriceUpdate) { updates <- u })

	require.NoError(t, c.StartFeeds(context.Background()))
	defer c.Close()

	select {
	case u := <-updates:
		assert.Equal(t, "BTCUSDT", u.Symbol)
		assert.Equal(t, 30000.5, u.Price)
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}

	assert.Contains(t, gotSub, "SUBSCRIPTION")
	assert.Contains(t, gotSub, "spot@miniTicker")
	assert.Equal(t, connector.FeedStreaming, c.FeedState(connector.Spot))
	assert.GreaterOrEqual(t, c.Stats().WSMessages, int64(2))
}
