package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spreadup-monitor/internal/connector"
)

func testUpdate() connector.PriceUpdate {
	return connector.PriceUpdate{
		Exchange:  connector.MEXC,
		Market:    connector.Spot,
		Symbol:    "BTCUSDT",
		Price:     30000.5,
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
}

func TestMirrorWritesEnqueuedUpdates(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := newRedisMirror(db, time.Minute)
	defer m.Close()

	u := testUpdate()
	data, err := json.Marshal(u)
	require.NoError(t, err)
	mock.ExpectSet("price:"+u.Key(), data, time.Minute).SetVal("OK")

	m.Enqueue(u)
	assert.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 10*time.Millisecond)
}

func TestMirrorLoadRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := newRedisMirror(db, time.Minute)
	defer m.Close()

	u := testUpdate()
	data, err := json.Marshal(u)
	require.NoError(t, err)
	mock.ExpectGet("price:" + u.Key()).SetVal(string(data))

	got, err := m.Load(context.Background(), u.Key())
	require.NoError(t, err)
	assert.Equal(t, u, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorLoadMissingKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := newRedisMirror(db, time.Minute)
	defer m.Close()

	mock.ExpectGet("price:nope").RedisNil()

	_, err := m.Load(context.Background(), "nope")
	assert.Error(t, err)
}

func TestStoreTopList(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := newRedisMirror(db, time.Minute)
	defer m.Close()

	payload := []byte(`[{"symbol":"BTCUSDT","spread_percent":4.0}]`)
	mock.ExpectSet("opportunities:top", payload, topListTTL).SetVal("OK")

	require.NoError(t, m.StoreTopList(context.Background(), payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheMirrorTopList(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := newRedisMirror(db, time.Minute)
	defer m.Close()

	pc := New(time.Minute, WithMirror(m))
	payload := []byte(`[]`)
	mock.ExpectSet("opportunities:top", payload, topListTTL).SetVal("OK")

	require.NoError(t, pc.MirrorTopList(context.Background(), payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheMirrorTopListWithoutMirror(t *testing.T) {
	pc := New(time.Minute)
	assert.NoError(t, pc.MirrorTopList(context.Background(), []byte(`[]`)))
}
