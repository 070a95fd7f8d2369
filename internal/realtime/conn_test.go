package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumate-io/edumate_client/pkg/logger"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func testLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "text", Output: io.Discard})
}

// wsServer is a minimal fake realtime backend.
type wsServer struct {
	srv      *httptest.Server
	upgrades atomic.Int64
	conns    chan *websocket.Conn
	auth     chan string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{
		conns: make(chan *websocket.Conn, 8),
		auth:  make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.auth <- r.Header.Get("Authorization")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.upgrades.Add(1)
		s.conns <- ws
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-s.conns:
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection arrived")
		return nil
	}
}

func fastConfig(url string) Config {
	return Config{
		URL:                   url,
		DialTimeout:           time.Second,
		ReconnectInitialDelay: 5 * time.Millisecond,
		ReconnectMaxDelay:     10 * time.Millisecond,
		MaxReconnectAttempts:  5,
	}
}

func newTestClient(t *testing.T, url string, token string) *Client {
	t.Helper()
	c, err := NewClient(fastConfig(url), staticToken(token), testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{}, staticToken("x"), testLogger(), nil)
	assert.Error(t, err)

	_, err = NewClient(Config{URL: "ws://x"}, nil, testLogger(), nil)
	assert.Error(t, err)

	_, err = NewClient(Config{URL: "ws://x"}, staticToken("x"), nil, nil)
	assert.Error(t, err)
}

func TestConnectWithoutTokenIsNoOp(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "")

	require.NoError(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())
	assert.Zero(t, s.upgrades.Load())
}

func TestConnectCarriesBearerToken(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok-123")

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	assert.Equal(t, "Bearer tok-123", <-s.auth)
}

func TestConnectIsIdempotent(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, int64(1), s.upgrades.Load())
}

func TestSubscribedHandlerReceivesEvents(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	got := make(chan json.RawMessage, 1)
	c.On(EventUserOnline, func(data json.RawMessage) {
		got <- data
	})

	require.NoError(t, c.Connect(context.Background()))
	ws := s.accept(t)

	payload := json.RawMessage(`{"userId":"u1","username":"ada"}`)
	require.NoError(t, ws.WriteJSON(Envelope{Event: EventUserOnline, Data: payload}))

	select {
	case data := <-got:
		user, err := DecodeUserOnline(data)
		require.NoError(t, err)
		assert.Equal(t, "u1", user.UserID)
		assert.Equal(t, "ada", user.Username)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	var calls atomic.Int64
	sub := c.On(EventUserOnline, func(json.RawMessage) { calls.Add(1) })
	seen := make(chan struct{}, 4)
	c.On(EventUserOffline, func(json.RawMessage) { seen <- struct{}{} })

	require.NoError(t, c.Connect(context.Background()))
	ws := s.accept(t)

	sub.Unsubscribe()
	sub.Unsubscribe() // safe to call twice

	require.NoError(t, ws.WriteJSON(Envelope{Event: EventUserOnline, Data: json.RawMessage(`{"userId":"u1"}`)}))
	// The offline event acts as a fence: once it arrives, the online event has
	// already been dispatched (delivery is in order on one read loop).
	require.NoError(t, ws.WriteJSON(Envelope{Event: EventUserOffline, Data: json.RawMessage(`{"userId":"u1"}`)}))

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("fence event not delivered")
	}
	assert.Zero(t, calls.Load())
}

func TestOffRemovesAllHandlers(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	var calls atomic.Int64
	c.On(EventUserOnline, func(json.RawMessage) { calls.Add(1) })
	c.On(EventUserOnline, func(json.RawMessage) { calls.Add(1) })
	fence := make(chan struct{}, 1)
	c.On(EventUserOffline, func(json.RawMessage) { fence <- struct{}{} })

	c.Off(EventUserOnline)

	require.NoError(t, c.Connect(context.Background()))
	ws := s.accept(t)
	require.NoError(t, ws.WriteJSON(Envelope{Event: EventUserOnline, Data: json.RawMessage(`{"userId":"u1"}`)}))
	require.NoError(t, ws.WriteJSON(Envelope{Event: EventUserOffline, Data: json.RawMessage(`{"userId":"u1"}`)}))

	select {
	case <-fence:
	case <-time.After(2 * time.Second):
		t.Fatal("fence event not delivered")
	}
	assert.Zero(t, calls.Load())
}

func TestEmitWhileDisconnectedIsDropped(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	assert.NotPanics(t, func() {
		c.Emit(EventGetOnline, nil)
		c.JoinClass("class-1")
	})
}

func TestEmitReachesServer(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	require.NoError(t, c.Connect(context.Background()))
	ws := s.accept(t)

	c.JoinClass("class-42")

	var env Envelope
	require.NoError(t, ws.ReadJSON(&env))
	assert.Equal(t, EventJoinClass, env.Event)

	var room RoomPayload
	require.NoError(t, json.Unmarshal(env.Data, &room))
	assert.Equal(t, "class-42", room.ClassID)
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	require.NoError(t, c.Connect(context.Background()))
	first := s.accept(t)

	// Server drops the connection; the client should dial again.
	_ = first.Close()
	s.accept(t)

	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), s.upgrades.Load())
}

func TestReconnectBudgetExhaustion(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	require.NoError(t, c.Connect(context.Background()))
	ws := s.accept(t)

	// Kill the server so every reconnect attempt fails.
	s.srv.CloseClientConnections()
	s.srv.Close()
	_ = ws.Close()

	require.Eventually(t, func() bool { return !c.IsConnected() }, 2*time.Second, 10*time.Millisecond)

	// 5 attempts at <=10ms backoff each; after this the budget is long gone
	// and the client must not have dialed anything back up.
	time.Sleep(300 * time.Millisecond)
	assert.False(t, c.IsConnected())
}

// freeAddr reserves a listen address and immediately frees it, so dialing it
// is refused until a test binds it again.
func freeAddr(t *testing.T) string {
	t.Helper()
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lst.Addr().String()
	require.NoError(t, lst.Close())
	return addr
}

func TestConnectRetriesWhileGatewayUnavailable(t *testing.T) {
	addr := freeAddr(t)

	cfg := Config{
		URL:                   "ws://" + addr,
		DialTimeout:           time.Second,
		ReconnectInitialDelay: 50 * time.Millisecond,
		ReconnectMaxDelay:     100 * time.Millisecond,
		MaxReconnectAttempts:  20,
	}
	c, err := NewClient(cfg, staticToken("tok"), testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	// Nothing listens yet; the dial failure must not surface.
	require.NoError(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())

	// The gateway comes up well inside the retry budget.
	lst, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	upgrader := websocket.Upgrader{}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = upgrader.Upgrade(w, r, nil)
	})}
	go func() { _ = srv.Serve(lst) }()
	t.Cleanup(func() { _ = srv.Close() })

	require.Eventually(t, c.IsConnected, 3*time.Second, 10*time.Millisecond)
}

func TestConnectAbsorbsDialFailuresUpToBudget(t *testing.T) {
	c := newTestClient(t, "ws://"+freeAddr(t), "tok")

	require.NoError(t, c.Connect(context.Background()))

	// The bounded retry budget drains in the background, then the client
	// settles disconnected with no dial in flight.
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.dialing && c.reconnectAttempts > c.cfg.MaxReconnectAttempts
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.IsConnected())
}

func TestConcurrentConnectDialsOnce(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Connect(context.Background()))
		}()
	}
	wg.Wait()

	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), s.upgrades.Load())
}

func TestOnConnectHookFiresOnEachConnect(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	fires := make(chan struct{}, 4)
	sub := c.OnConnect(func() { fires <- struct{}{} })

	require.NoError(t, c.Connect(context.Background()))
	first := s.accept(t)

	select {
	case <-fires:
	case <-time.After(2 * time.Second):
		t.Fatal("connect hook did not fire")
	}

	// Drop the connection; the hook fires again once the client redials.
	_ = first.Close()
	s.accept(t)

	select {
	case <-fires:
	case <-time.After(2 * time.Second):
		t.Fatal("connect hook did not fire after reconnect")
	}

	sub.Unsubscribe()
	sub.Unsubscribe() // safe to call twice
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(t, s.url(), "tok")

	require.NoError(t, c.Connect(context.Background()))
	s.accept(t)

	c.Close()
	c.Close()
	assert.False(t, c.IsConnected())
}
