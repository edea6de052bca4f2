// Package channel owns the persistent bidirectional connection to the
// chat backend: one websocket per authenticated identity, with automatic
// reconnection that is transparent to callers.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/courseloop/chatsync/internal/bus"
	"github.com/courseloop/chatsync/internal/config"
	"github.com/courseloop/chatsync/internal/metrics"
	"github.com/courseloop/chatsync/internal/status"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Envelope is the wire frame for channel events in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Handler receives the raw payload of a named inbound event.
type Handler func(data json.RawMessage)

// Conn is the live channel. Channel-level errors are surfaced as
// notice.* bus events and never tear down the session.
type Conn struct {
	url       string
	token     string
	reconnect config.ReconnectConfig
	machine   *status.Machine
	bus       *bus.Bus
	logger    *zap.Logger
	dialer    *websocket.Dialer

	mu       sync.Mutex
	ws       *websocket.Conn
	handlers map[string][]Handler

	cancel context.CancelFunc
}

// New creates a channel connection manager. Connect must be called
// before Emit.
func New(channelURL, token string, rc config.ReconnectConfig, m *status.Machine, b *bus.Bus, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		url:       channelURL,
		token:     token,
		reconnect: rc,
		machine:   m,
		bus:       b,
		logger:    logger,
		dialer:    websocket.DefaultDialer,
		handlers:  make(map[string][]Handler),
	}
}

// On registers a handler for a named inbound event. Handlers run on the
// read loop goroutine, in registration order.
func (c *Conn) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Connect dials the channel for the given identity and starts the read
// loop. Reconnection after the initial connect is automatic.
func (c *Conn) Connect(ctx context.Context, identityID string) error {
	if err := c.machine.Transition(status.Connecting); err != nil {
		return err
	}

	ctx, c.cancel = context.WithCancel(ctx)
	if err := c.dial(ctx, identityID); err != nil {
		_ = c.machine.Transition(status.Closed)
		return fmt.Errorf("connect channel: %w", err)
	}

	go c.readLoop(ctx, identityID)
	return nil
}

// Emit sends a named event over the channel. An emit while disconnected
// fails; the caller surfaces it as a notice, not a crash.
func (c *Conn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("emit %q: channel not connected", event)
	}
	if err := c.ws.WriteJSON(outEnvelope{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("emit %q: %w", event, err)
	}
	return nil
}

// Close tears down the channel for good.
func (c *Conn) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
	_ = c.machine.Transition(status.Closed)
}

func (c *Conn) dial(ctx context.Context, identityID string) error {
	header := map[string][]string{}
	if c.token != "" {
		header["Authorization"] = []string{"Bearer " + c.token}
	}
	ws, _, err := c.dialer.DialContext(ctx, c.url+"?identity="+identityID, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	_ = c.machine.Transition(status.Connected)
	c.publish(bus.KindChannelConnected, identityID)
	c.logger.Info("channel connected", zap.String("identity", identityID))
	return nil
}

func (c *Conn) readLoop(ctx context.Context, identityID string) {
	for {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws == nil {
			return
		}

		var env Envelope
		err := ws.ReadJSON(&env)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("channel read failed", zap.Error(err))
			c.mu.Lock()
			c.ws = nil
			c.mu.Unlock()
			_ = ws.Close()
			_ = c.machine.Transition(status.Reconnecting)
			c.publish(bus.KindChannelDisconnected, identityID)

			if err := c.redial(ctx, identityID); err != nil {
				return
			}
			continue
		}

		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env Envelope) {
	if env.Event == "error" {
		var p errorPayload
		_ = json.Unmarshal(env.Data, &p)
		c.logger.Warn("channel error event", zap.String("message", p.Message))
		c.publish(bus.KindNotice, bus.Notice{Source: "channel", Message: p.Message})
		// Fall through: consumers may watch error events too.
	}

	c.mu.Lock()
	hs := append([]Handler(nil), c.handlers[env.Event]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(env.Data)
	}
}

func (c *Conn) redial(ctx context.Context, identityID string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(c.reconnect.InitialIntervalMs) * time.Millisecond
	bo.MaxInterval = time.Duration(c.reconnect.MaxIntervalMs) * time.Millisecond
	bo.MaxElapsedTime = 0 // retry until the context is canceled

	operation := func() error {
		_ = c.machine.Transition(status.Connecting)
		if err := c.dial(ctx, identityID); err != nil {
			_ = c.machine.Transition(status.Reconnecting)
			return err
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		metrics.Reconnects.Inc()
		c.logger.Warn("channel reconnect failed",
			zap.Error(err), zap.Duration("retry_in", next))
	}

	return backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify)
}

func (c *Conn) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(kind, payload)
}
