package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/metrics"
)

const (
	mirrorQueueSize    = 1024
	mirrorWriteTimeout = 2 * time.Second
	topListTTL         = 30 * time.Second
)

// RedisMirror writes accepted price updates through to Redis under
// price:<exchange:market:symbol> with the cache TTL, so dashboards and
// other services can read the latest prices without touching this
// process. Writes happen on a single background goroutine; when the
// queue is full, updates are dropped rather than blocking the feed.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration

	ch        chan connector.PriceUpdate
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRedisMirror connects to Redis and verifies the connection.
func NewRedisMirror(redisURL string, ttl time.Duration) (*RedisMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisMirror(client, ttl), nil
}

func newRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &RedisMirror{
		client: client,
		ttl:    ttl,
		ch:     make(chan connector.PriceUpdate, mirrorQueueSize),
		done:   make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m
}

// Enqueue hands an update to the mirror without blocking.
func (m *RedisMirror) Enqueue(u connector.PriceUpdate) {
	select {
	case m.ch <- u:
	default:
		metrics.MirrorDropped.Inc()
	}
}

func (m *RedisMirror) writeLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case u := <-m.ch:
			data, err := json.Marshal(u)
			if err != nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
			err = m.client.Set(ctx, "price:"+u.Key(), data, m.ttl).Err()
			cancel()
			if err != nil {
				metrics.MirrorErrors.Inc()
				log.Debug().Err(err).Str("key", u.Key()).Msg("Mirror write failed")
			}
		}
	}
}

// Load reads a mirrored update back by cache key, mostly for external
// tooling and smoke checks.
func (m *RedisMirror) Load(ctx context.Context, key string) (connector.PriceUpdate, error) {
	data, err := m.client.Get(ctx, "price:"+key).Bytes()
	if err != nil {
		return connector.PriceUpdate{}, err
	}
	var u connector.PriceUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return connector.PriceUpdate{}, fmt.Errorf("decode mirrored update: %w", err)
	}
	return u, nil
}

// StoreTopList mirrors the latest scan's best opportunities under a
// short-lived key for external consumers.
func (m *RedisMirror) StoreTopList(ctx context.Context, data []byte) error {
	return m.client.Set(ctx, "opportunities:top", data, topListTTL).Err()
}

// Close stops the writer and closes the connection. Queued updates not
// yet written are discarded.
func (m *RedisMirror) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
	return m.client.Close()
}
