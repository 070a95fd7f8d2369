// Package realtime maintains the single authenticated websocket connection to
// the platform's realtime channel and exposes a minimal pub/sub surface over it.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edumate-io/edumate_client/pkg/logger"
	"github.com/edumate-io/edumate_client/pkg/metrics"
)

// Config holds realtime connection configuration.
type Config struct {
	URL                   string        // ws:// or wss:// endpoint
	DialTimeout           time.Duration // handshake timeout, defaults to 10s
	ReconnectInitialDelay time.Duration // defaults to 1s
	ReconnectMaxDelay     time.Duration // defaults to 5s
	MaxReconnectAttempts  int           // defaults to 5
}

func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReconnectInitialDelay == 0 {
		c.ReconnectInitialDelay = time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 5 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
}

// TokenSource resolves the bearer token used as connection auth.
type TokenSource interface {
	AccessToken() string
}

// Handler receives the raw payload of a subscribed event. Handlers for a given
// connection are invoked sequentially from the read loop; they must not block.
type Handler func(data json.RawMessage)

// Subscription is a scoped handle returned by On and OnConnect. Unsubscribing
// through the handle guarantees the handler cannot fire after the owner is gone.
type Subscription struct {
	client *Client
	event  string
	id     uint64
	hook   bool
	once   sync.Once
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.hook {
			s.client.removeConnectHook(s.id)
			return
		}
		s.client.removeHandler(s.event, s.id)
	})
}

// Client owns at most one live websocket connection. It reconnects
// automatically with capped exponential backoff up to a bounded number of
// attempts, then gives up silently; callers observe failure only through
// IsConnected and the absence of events.
type Client struct {
	cfg    Config
	tokens TokenSource
	log    logger.Logger
	m      *metrics.Metrics

	mu                sync.Mutex // guards ws, connected, closed, dialing, reconnectAttempts
	ws                *websocket.Conn
	connected         bool
	closed            bool
	dialing           bool // a dial or reconnect loop is in flight
	reconnectAttempts int

	writeMu sync.Mutex

	handlerMu    sync.RWMutex
	handlers     map[string]map[uint64]Handler
	connectHooks map[uint64]func()
	nextSubID    uint64
}

// NewClient creates a realtime client. The metrics instance is optional.
func NewClient(cfg Config, tokens TokenSource, log logger.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("realtime URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.applyDefaults()

	return &Client{
		cfg:      cfg,
		tokens:   tokens,
		log:      log,
		m:        m,
		handlers: make(map[string]map[uint64]Handler),
	}, nil
}

// Connect opens the websocket connection. It is a no-op with a warning when no
// access token is available, and a no-op when already connected or while a
// dial is in flight. A failed dial is handed to the reconnect loop instead of
// being returned; callers observe the outcome only through IsConnected.
func (c *Client) Connect(ctx context.Context) error {
	token := c.tokens.AccessToken()
	if token == "" {
		c.log.Warn("Realtime connect skipped: no access token available")
		return nil
	}

	c.mu.Lock()
	if c.connected || c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.closed = false
	c.reconnectAttempts = 0
	c.mu.Unlock()

	if err := c.dial(ctx, token); err != nil {
		c.log.Warn("Realtime connect failed, retrying in background", logger.ErrorField(err))
		go c.reconnectLoop()
	}
	return nil
}

func (c *Client) dial(ctx context.Context, token string) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("realtime dial failed: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.dialing = false
		c.mu.Unlock()
		_ = ws.Close()
		return nil
	}
	c.ws = ws
	c.connected = true
	c.dialing = false
	c.reconnectAttempts = 0
	c.mu.Unlock()

	c.log.Info("Realtime connection established", logger.StringField("url", c.cfg.URL))

	go c.readLoop(ws)
	c.fireConnectHooks()
	return nil
}

// fireConnectHooks invokes the registered connect callbacks after every
// successful dial, initial and reconnect alike.
func (c *Client) fireConnectHooks() {
	c.handlerMu.RLock()
	hooks := make([]func(), 0, len(c.connectHooks))
	for _, fn := range c.connectHooks {
		hooks = append(hooks, fn)
	}
	c.handlerMu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

// readLoop reads envelopes until the connection breaks, then hands off to the
// reconnect loop. All handler dispatch happens on this single goroutine.
func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		var env Envelope
		if err := ws.ReadJSON(&env); err != nil {
			c.mu.Lock()
			stillCurrent := c.ws == ws
			if stillCurrent {
				c.connected = false
				c.ws = nil
				if !c.closed {
					c.dialing = true
				}
			}
			closed := c.closed
			c.mu.Unlock()

			if !stillCurrent || closed {
				return
			}

			c.log.Warn("Realtime connection lost", logger.ErrorField(err))
			c.reconnectLoop()
			return
		}

		if env.Event == "" {
			c.log.Debug("Dropping realtime message without event name")
			continue
		}
		if c.m != nil {
			c.m.ObserveRealtimeEvent(env.Event)
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	c.handlerMu.RLock()
	handlers := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		handlers = append(handlers, h)
	}
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		h(env.Data)
	}
}

// reconnectLoop retries with capped exponential backoff. Exhausting the attempt
// budget force-disconnects and gives up; only a log line records it.
func (c *Client) reconnectLoop() {
	delay := c.cfg.ReconnectInitialDelay

	for {
		c.mu.Lock()
		if c.closed {
			c.dialing = false
			c.mu.Unlock()
			return
		}
		c.reconnectAttempts++
		attempt := c.reconnectAttempts
		c.mu.Unlock()

		if attempt > c.cfg.MaxReconnectAttempts {
			c.setDialing(false)
			c.log.Error("Realtime reconnect budget exhausted, giving up",
				logger.IntField("attempts", c.cfg.MaxReconnectAttempts))
			return
		}

		if c.m != nil && c.m.RealtimeReconnects != nil {
			c.m.RealtimeReconnects.Inc()
		}
		c.log.Info("Realtime reconnect scheduled",
			logger.IntField("attempt", attempt),
			logger.DurationField("delay", delay))
		time.Sleep(delay)

		token := c.tokens.AccessToken()
		if token == "" {
			c.setDialing(false)
			c.log.Warn("Realtime reconnect abandoned: no access token available")
			return
		}

		err := c.dial(context.Background(), token)
		if err == nil {
			return
		}
		c.log.Warn("Realtime reconnect attempt failed", logger.ErrorField(err))

		delay *= 2
		if delay > c.cfg.ReconnectMaxDelay {
			delay = c.cfg.ReconnectMaxDelay
		}
	}
}

func (c *Client) setDialing(v bool) {
	c.mu.Lock()
	c.dialing = v
	c.mu.Unlock()
}

// Close tears down the connection. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.connected = false
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
}

// IsConnected reports whether the websocket is currently up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// On subscribes a handler to a named server-pushed event and returns a scoped
// subscription handle.
func (c *Client) On(event string, handler Handler) *Subscription {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.nextSubID++
	id := c.nextSubID
	c.handlers[event][id] = handler

	return &Subscription{client: c, event: event, id: id}
}

// OnConnect registers a callback fired after every successful dial, initial
// connects and reconnects alike. Subscribers use it to re-request server state
// the connection loss may have invalidated.
func (c *Client) OnConnect(fn func()) *Subscription {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	if c.connectHooks == nil {
		c.connectHooks = make(map[uint64]func())
	}
	c.nextSubID++
	id := c.nextSubID
	c.connectHooks[id] = fn

	return &Subscription{client: c, id: id, hook: true}
}

func (c *Client) removeConnectHook(id uint64) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	delete(c.connectHooks, id)
}

// Off removes all handlers registered for the event.
func (c *Client) Off(event string) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	delete(c.handlers, event)
}

func (c *Client) removeHandler(event string, id uint64) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	if m := c.handlers[event]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(c.handlers, event)
		}
	}
}

// Emit sends a message to the server. Messages are silently dropped while the
// connection is down: no queuing, no error surfaced.
func (c *Client) Emit(event string, payload any) {
	c.mu.Lock()
	ws := c.ws
	connected := c.connected
	c.mu.Unlock()

	if !connected || ws == nil {
		if c.m != nil && c.m.RealtimeDroppedEmits != nil {
			c.m.RealtimeDroppedEmits.Inc()
		}
		c.log.Debug("Dropping emit while disconnected", logger.StringField("event", event))
		return
	}

	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			c.log.Error("Failed to encode emit payload",
				logger.StringField("event", event), logger.ErrorField(err))
			return
		}
		data = encoded
	}

	c.writeMu.Lock()
	err := ws.WriteJSON(Envelope{Event: event, Data: data})
	c.writeMu.Unlock()
	if err != nil {
		c.log.Warn("Failed to emit realtime event",
			logger.StringField("event", event), logger.ErrorField(err))
	}
}

// JoinClass announces the client into a class-scoped room.
func (c *Client) JoinClass(classID string) {
	c.Emit(EventJoinClass, RoomPayload{ClassID: classID})
}

// LeaveClass removes the client from a class-scoped room.
func (c *Client) LeaveClass(classID string) {
	c.Emit(EventLeaveClass, RoomPayload{ClassID: classID})
}
