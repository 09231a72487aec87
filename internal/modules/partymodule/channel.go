package partymodule

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/watchparty/internal/config"
)

// ChannelState is the connection lifecycle state of a party channel.
type ChannelState string

const (
	ChannelIdle         ChannelState = "idle"
	ChannelConnecting   ChannelState = "connecting"
	ChannelOpen         ChannelState = "open"
	ChannelReconnecting ChannelState = "reconnecting"
	ChannelClosed       ChannelState = "closed"
)

// Channel maintains one websocket connection to a party room, transparently
// reconnecting with capped exponential backoff. Connection loss is never an
// error surfaced to the caller; the channel only reports state changes.
type Channel struct {
	logger    hclog.Logger
	cfg       config.PartyConfig
	onMessage func(*Message)
	onState   func(ChannelState)

	mu      sync.Mutex
	conn    *websocket.Conn
	state   ChannelState
	attempt int
	cancel  context.CancelFunc

	writeMu sync.Mutex
}

// NewChannel creates a disconnected channel. Both callbacks may be nil.
func NewChannel(logger hclog.Logger, cfg config.PartyConfig, onMessage func(*Message), onState func(ChannelState)) *Channel {
	return &Channel{
		logger:    logger.Named("party-channel"),
		cfg:       cfg,
		onMessage: onMessage,
		onState:   onState,
		state:     ChannelIdle,
	}
}

// Connect starts the connection loop against a room URL. It returns
// immediately; the channel dials and redials in the background until
// Disconnect is called or ctx is cancelled.
func (c *Channel) Connect(ctx context.Context, url string) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.attempt = 0
	// A fresh Connect revives a previously disconnected channel.
	c.state = ChannelIdle
	c.mu.Unlock()

	c.setState(ChannelConnecting)
	go c.run(runCtx, url)
}

func (c *Channel) run(ctx context.Context, url string) {
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := c.nextDelay()
			c.logger.Warn("dial failed, retrying", "url", url, "delay", delay, "error", err)
			c.setState(ChannelReconnecting)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.attempt = 0
		c.mu.Unlock()
		c.setState(ChannelOpen)
		c.logger.Info("channel open", "url", url)

		pingDone := make(chan struct{})
		go c.pingLoop(ctx, conn, pingDone)
		c.readLoop(conn)
		close(pingDone)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		delay := c.nextDelay()
		c.logger.Warn("connection lost, reconnecting", "delay", delay)
		c.setState(ChannelReconnecting)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// nextDelay returns the backoff for the current attempt and advances the
// counter. The delay doubles per attempt up to the configured cap.
func (c *Channel) nextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	delay := backoffDelay(c.attempt, c.cfg.ReconnectBase, c.cfg.ReconnectCap)
	c.attempt++
	return delay
}

func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	pongWait := 2 * c.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, ok := DecodeMessage(data)
		if !ok {
			c.logger.Debug("dropping undecodable frame", "bytes", len(data))
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				// The read loop will observe the dead connection.
				return
			}
		}
	}
}

// Send writes a message to the room. A send on a channel that is not open is
// a silent no-op; transport messages are only meaningful on a live socket.
func (c *Channel) Send(msg *Message) {
	c.mu.Lock()
	conn := c.conn
	open := c.state == ChannelOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return
	}

	data, err := EncodeMessage(msg)
	if err != nil {
		c.logger.Error("failed to encode message", "type", msg.Type, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("send failed", "type", msg.Type, "error", err)
	}
}

// State returns the current connection state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(state ChannelState) {
	c.mu.Lock()
	if c.state == ChannelClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	handler := c.onState
	c.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

// Disconnect tears the channel down and cancels any pending reconnect.
// Idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.state == ChannelClosed {
		c.mu.Unlock()
		return
	}
	c.state = ChannelClosed
	c.attempt = 0
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	handler := c.onState
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if handler != nil {
		handler(ChannelClosed)
	}
}
