package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dysonmetrics/telemetry/internal/state"
)

// Client maintains a best-effort, self-healing connection to the game
// telemetry feed and exposes the latest decoded state.
type Client struct {
	cfg    Config
	logger *slog.Logger

	// Serializes handshakes so at most one connect attempt is in
	// flight at a time.
	connectMu sync.Mutex

	mu                sync.RWMutex
	conn              *websocket.Conn
	connected         bool // transport session open
	closed            bool
	shouldReconnect   bool
	reconnectAttempts int
	reconnectDelay    time.Duration
	latest            *state.FactoryState
	lastMessageAt     time.Time
	lastLatency       time.Duration
	onState           func(*state.FactoryState)

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient creates a live feed client. It does not connect.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Client{
		cfg:             cfg,
		logger:          logger,
		shouldReconnect: true,
		reconnectDelay:  cfg.ReconnectInitialDelay,
		done:            make(chan struct{}),
	}
}

// OnState registers the observer invoked on each decoded frame. Only
// one observer is supported; a later call replaces the earlier one.
func (c *Client) OnState(fn func(*state.FactoryState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// Connect establishes the WebSocket session and starts the receive
// loop. It is idempotent: if a session is already open it returns nil
// immediately. Handshake failures return ErrConnectionUnavailable.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.RLock()
	closed, connected := c.closed, c.connected
	c.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}
	if connected {
		return nil
	}

	c.mu.RLock()
	url := c.cfg.URL
	c.mu.RUnlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	start := time.Now()
	conn, _, err := dialer.DialContext(dialCtx, url, nil)
	if err != nil {
		c.logger.Warn("could not connect to game",
			"url", url,
			"error", err,
		)
		return fmt.Errorf("%w: dial %s: %v", ErrConnectionUnavailable, url, err)
	}

	// Close may have run while the handshake was in flight. The session
	// must not start in that case, so re-check under the lock and claim
	// the waitgroup slot in the same critical section.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.connected = true
	c.reconnectAttempts = 0
	c.reconnectDelay = c.cfg.ReconnectInitialDelay
	c.wg.Add(1)
	c.mu.Unlock()

	go c.receiveLoop(conn)

	c.logger.Info("connected to game",
		"url", url,
		"handshake_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// receiveLoop reads frames until the session ends, then schedules a
// reconnect unless the client is being closed.
func (c *Client) receiveLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.connected = false
		}
		reconnect := c.shouldReconnect && !c.closed
		if reconnect {
			c.wg.Add(1)
		}
		c.mu.Unlock()

		if reconnect {
			go c.scheduleReconnect()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Info("live feed session ended", "error", err)
			}
			return
		}

		var frame state.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("skipping malformed frame",
				"error", err,
				"bytes", len(data),
			)
			continue
		}

		st := state.FromFrame(&frame)

		// Latency from the producer-side timestamp. Clock skew can
		// make this negative; keep it rather than reject the frame.
		var latency time.Duration
		if ts := frame.FrameTimestamp(); !ts.IsZero() {
			latency = receivedAt.Sub(ts)
		}

		c.mu.Lock()
		c.latest = st
		c.lastMessageAt = receivedAt
		c.lastLatency = latency
		cb := c.onState
		c.mu.Unlock()

		if cb != nil {
			c.notify(cb, st)
		}

		c.logger.Debug("received state update",
			"bytes", len(data),
			"planets", len(st.Planets),
			"latency_ms", latency.Milliseconds(),
		)
	}
}

// notify invokes the observer, recovering panics so a misbehaving
// callback cannot kill the receive loop.
func (c *Client) notify(cb func(*state.FactoryState), st *state.FactoryState) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("state observer panicked", "panic", r)
		}
	}()
	cb(st)
}

// scheduleReconnect retries the connection with exponential backoff.
// The delay advances once per scheduled attempt regardless of outcome.
func (c *Client) scheduleReconnect() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if !c.shouldReconnect || c.closed || c.connected {
			c.mu.Unlock()
			return
		}
		if c.reconnectAttempts >= c.cfg.ReconnectMaxAttempts {
			c.mu.Unlock()
			c.logger.Warn("max reconnection attempts reached",
				"attempts", c.cfg.ReconnectMaxAttempts,
			)
			return
		}
		c.reconnectAttempts++
		attempt := c.reconnectAttempts
		delay := c.nextReconnectDelay()
		c.mu.Unlock()

		c.logger.Info("reconnecting",
			"delay", delay,
			"attempt", attempt,
			"max_attempts", c.cfg.ReconnectMaxAttempts,
		)

		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		c.mu.RLock()
		enabled := c.shouldReconnect && !c.closed && !c.connected
		c.mu.RUnlock()
		if !enabled {
			return
		}

		if err := c.Connect(context.Background()); err == nil {
			return
		}
	}
}

// nextReconnectDelay returns the delay to wait before the next attempt
// and advances the backoff: each step multiplies by the backoff factor,
// clamped to the configured maximum. Callers must hold c.mu.
func (c *Client) nextReconnectDelay() time.Duration {
	delay := c.reconnectDelay
	if delay > c.cfg.ReconnectMaxDelay {
		delay = c.cfg.ReconnectMaxDelay
	}
	next := time.Duration(float64(delay) * c.cfg.ReconnectBackoff)
	if next > c.cfg.ReconnectMaxDelay {
		next = c.cfg.ReconnectMaxDelay
	}
	c.reconnectDelay = next
	return delay
}

// SetEndpoint changes the feed URL for future connection attempts. An
// open session keeps its current endpoint until it ends.
func (c *Client) SetEndpoint(url string) {
	c.mu.Lock()
	c.cfg.URL = url
	c.mu.Unlock()
}

// sessionOpen reports whether the transport session is open,
// regardless of data freshness.
func (c *Client) sessionOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// IsConnected reports whether the session is open and data is arriving.
// A session with no update for longer than the staleness threshold is
// treated as dead even if the transport has not errored.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.lastMessageAt.IsZero() {
		return false
	}
	return time.Since(c.lastMessageAt) <= stalenessThreshold
}

// IsHealthy is stricter than IsConnected: it additionally requires
// very fresh data and latency under the ceiling.
func (c *Client) IsHealthy() bool {
	if !c.IsConnected() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastMessageAt) < healthyMaxAge &&
		c.lastLatency < healthyMaxLatency
}

// Latest returns the most recently decoded state, or nil.
func (c *Client) Latest() *state.FactoryState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Latency returns the latest latency estimate.
func (c *Client) Latency() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastLatency
}

// GetCurrentState returns the most recent state, connecting first if
// needed and polling until data arrives or the timeout elapses.
func (c *Client) GetCurrentState(ctx context.Context, timeout time.Duration) (*state.FactoryState, error) {
	if !c.sessionOpen() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		if st := c.Latest(); st != nil {
			return st, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: no data within %s", ErrTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-c.done:
			return nil, ErrConnectionUnavailable
		case <-time.After(pollInterval):
		}
	}
}

// WaitForFreshState polls until the most recent state is younger than
// maxAge, or fails with ErrTimeout.
func (c *Client) WaitForFreshState(ctx context.Context, maxAge, timeout time.Duration) (*state.FactoryState, error) {
	if !c.sessionOpen() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		c.mu.RLock()
		st := c.latest
		fresh := st != nil && !c.lastMessageAt.IsZero() && time.Since(c.lastMessageAt) < maxAge
		c.mu.RUnlock()
		if fresh {
			return st, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: no data fresher than %s within %s", ErrTimeout, maxAge, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-c.done:
			return nil, ErrConnectionUnavailable
		case <-time.After(freshPollInterval):
		}
	}
}

// Status returns a diagnostics snapshot.
func (c *Client) Status() Status {
	connected := c.IsConnected()
	healthy := c.IsHealthy()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var age float64
	if !c.lastMessageAt.IsZero() {
		age = float64(time.Since(c.lastMessageAt).Microseconds()) / 1000
	}

	return Status{
		URL:               c.cfg.URL,
		Connected:         connected,
		Healthy:           healthy,
		HasData:           c.latest != nil,
		LatencyMS:         float64(c.lastLatency.Microseconds()) / 1000,
		LastUpdateAgeMS:   age,
		ReconnectAttempts: c.reconnectAttempts,
	}
}

// Close disables reconnection, cancels the receive loop, closes the
// transport, and waits for background work to finish. Safe to call
// multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.shouldReconnect = false
	c.connected = false
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout),
		)
		conn.Close()
	}

	c.wg.Wait()
	c.logger.Info("live feed client closed")
	return nil
}
