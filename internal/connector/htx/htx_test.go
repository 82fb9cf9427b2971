package htx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spreadup-monitor/internal/connector"
)

func marketServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/market/tickers":
			w.Write([]byte(`{"status":"ok","data":[
				{"symbol":"btcusdt","close":30000.5,"vol":100000000},
				{"symbol":"ethusdt","close":2000,"vol":50000000},
				{"symbol":"deadusdt","close":0,"vol":0}
			]}`))
		case "/api/v1/contract_contract_info":
			w.Write([]byte(`{"status":"ok","data":[
				{"symbol":"BTC","contract_status":1},
				{"symbol":"ETH","contract_status":1},
				{"symbol":"LTC","contract_status":3}
			]}`))
		case "/market/history/kline":
			switch r.URL.Query().Get("symbol") {
			case "BTC_CQ":
				w.Write([]byte(`{"status":"ok","data":[{"close":31200}]}`))
			case "ETH_CQ":
				w.Write([]byte(`{"status":"ok","data":[{"close":2100.25}]}`))
			default:
				w.Write([]byte(`{"status":"error","data":[]}`))
			}
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestConnector(srvURL string) *Connector {
	return New(connector.Config{
		SpotRestURL:    srvURL,
		FuturesRestURL: srvURL,
		PollInterval:   5 * time.Millisecond,
		RestRate:       1000,
		RestBurst:      1000,
	})
}

func TestInitializeDiscoversSymbols(t *testing.T) {
	srv := marketServer(t)
	defer srv.Close()

	c := newTestConnector(srv.URL)
	require.NoError(t, c.Initialize(context.Background()))

	// The dead ticker still names a listed symbol; only prices are
	// filtered at snapshot time.
	assert.Equal(t, 3, c.SymbolCount(connector.Spot))
	assert.Equal(t, 2, c.SymbolCount(connector.Futures))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.CommonSymbols())
	assert.Equal(t, []string{"BTC", "ETH"}, c.probedBases())
}

func TestSnapshotSpot(t *testing.T) {
	srv := marketServer(t)
	defer srv.Close()

	c := newTestConnector(srv.URL)
	require.NoError(t, c.Initialize(context.Background()))

	quotes, err := c.SnapshotSpot(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, 30000.5, quotes["BTCUSDT"].Price)
	require.NotNil(t, quotes["BTCUSDT"].Volume24h)
	assert.Equal(t, 1e8, *quotes["BTCUSDT"].Volume24h)
}

func TestSnapshotFuturesProbesKnownBases(t *testing.T) {
	srv := marketServer(t)
	defer srv.Close()

	c := newTestConnector(srv.URL)
	require.NoError(t, c.Initialize(context.Background()))

	quotes, err := c.SnapshotFutures(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, 31200.0, quotes["BTCUSDT"].Price)
	assert.Equal(t, 2100.25, quotes["ETHUSDT"].Price)
}

func TestPollingFeedsEmitUpdates(t *testing.T) {
	srv := marketServer(t)
	defer srv.Close()

	c := newTestConnector(srv.URL)
	require.NoError(t, c.Initialize(context.Background()))

	updates := make(chan connector.PriceUpdate, 64)
	c.SetUpdateHandler(func(u connector.PriceUpdate) {
		select {
		case updates <- u:
		default:
		}
	})

	require.NoError(t, c.StartFeeds(context.Background()))
	defer c.Close()

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case u := <-updates:
			assert.Equal(t, connector.HTX, u.Exchange)
			seen[string(u.Market)] = true
		case <-deadline:
			t.Fatalf("feeds emitted markets %v", seen)
		}
	}
	assert.Equal(t, connector.FeedStreaming, c.FeedState(connector.Spot))
	assert.Equal(t, connector.FeedStreaming, c.FeedState(connector.Futures))
}

func TestPollSessionEndsOnServerFailure(t *testing.T) {
	var healthy bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok","data":[]}`))
	}))
	defer srv.Close()

	c := New(connector.Config{
		SpotRestURL:    srv.URL,
		FuturesRestURL: srv.URL,
		PollInterval:   5 * time.Millisecond,
		ReconnectWait:  5 * time.Millisecond,
		RestRate:       1000,
		RestBurst:      1000,
	})

	c.StartFeed(context.Background(), connector.Spot, c.runSpotPoll)
	assert.Eventually(t, func() bool { return c.Stats().Reconnects >= 1 }, 2*time.Second, 10*time.Millisecond)
	c.Close()
}
