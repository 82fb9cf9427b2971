package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsHandshakeTimeout  = 10 * time.Second
	wsCloseGracePeriod  = time.Second
	wsControlWriteLimit = 5 * time.Second
)

// WSConn wraps one venue websocket with a write mutex and a read
// deadline, so a socket that goes silent errors out instead of hanging
// its feed.
type WSConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	writeMu     sync.Mutex
}

// DialWS opens a websocket connection. readTimeout bounds the silence
// between inbound frames; zero disables the deadline. Protocol pongs
// refresh the deadline like any other frame.
func DialWS(ctx context.Context, rawURL string, readTimeout time.Duration) (*WSConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	if readTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}
	return &WSConn{conn: conn, readTimeout: readTimeout}, nil
}

// Read returns the next frame, refreshing the read deadline first.
func (c *WSConn) Read() ([]byte, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, err
		}
	}
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

// WriteJSON sends one JSON text frame.
func (c *WSConn) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// WriteText sends one plain text frame.
func (c *WSConn) WriteText(s string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// WritePing sends a protocol-level ping control frame.
func (c *WSConn) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsControlWriteLimit))
}

// KeepAlive sends pings on the given cadence until the context ends or
// a send fails. Run it on its own goroutine per connection.
func (c *WSConn) KeepAlive(ctx context.Context, interval time.Duration, ping func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ping(); err != nil {
				return
			}
		}
	}
}

// CloseOn closes the connection as soon as ctx ends or done is closed,
// unblocking a pending Read. The returned stop function releases the
// watcher when the session ends on its own.
func (c *WSConn) CloseOn(ctx context.Context, done <-chan struct{}) (stop func()) {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		case <-stopped:
			return
		}
		c.conn.Close()
	}()
	return func() { close(stopped) }
}

// Close closes the connection after a best-effort close frame.
func (c *WSConn) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsCloseGracePeriod))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// ReadFeed drains conn until the socket errors, the context ends or
// the connector shuts down. Control frames (acks, pongs) are skipped
// silently; data frames go through parse, and rejects count as parse
// drops. The feed is marked streaming on the first accepted update.
func (c *BaseConnector) ReadFeed(ctx context.Context, conn *WSConn, market MarketKind, isControl func([]byte) bool, parse func([]byte) (PriceUpdate, bool)) error {
	streaming := false
	for {
		msg, err := conn.Read()
		if err != nil {
			if c.ShuttingDown() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		c.CountMessage(market)
		if isControl != nil && isControl(msg) {
			continue
		}
		u, ok := parse(msg)
		if !ok {
			c.CountParseDrop(market)
			continue
		}
		if !streaming {
			c.SetFeedState(market, FeedStreaming)
			streaming = true
		}
		c.Emit(u)
	}
}
