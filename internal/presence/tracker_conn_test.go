package presence

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/edumate-io/edumate_client/internal/realtime"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

// presenceGateway is a ws fake recording the envelopes clients send.
type presenceGateway struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	inbox chan realtime.Envelope
}

func newPresenceGateway(t *testing.T) *presenceGateway {
	t.Helper()
	g := &presenceGateway{
		conns: make(chan *websocket.Conn, 4),
		inbox: make(chan realtime.Envelope, 16),
	}
	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.conns <- ws
		go func() {
			for {
				var env realtime.Envelope
				if err := ws.ReadJSON(&env); err != nil {
					return
				}
				g.inbox <- env
			}
		}()
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *presenceGateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *presenceGateway) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-g.conns:
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection arrived")
		return nil
	}
}

func (g *presenceGateway) expectEvent(t *testing.T, event string) {
	t.Helper()
	for {
		select {
		case env := <-g.inbox:
			if env.Event == event {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event %s never arrived", event)
		}
	}
}

func newConnectedTracker(t *testing.T, g *presenceGateway) (*Tracker, *realtime.Client) {
	t.Helper()
	l := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "text", Output: io.Discard})
	client, err := realtime.NewClient(realtime.Config{
		URL:                   g.url(),
		DialTimeout:           time.Second,
		ReconnectInitialDelay: 5 * time.Millisecond,
		ReconnectMaxDelay:     10 * time.Millisecond,
		MaxReconnectAttempts:  5,
	}, tokenStub{}, l, nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	tracker := New(l)
	// Same wiring order the daemon uses: attach first, connect after.
	tracker.Attach(client)
	t.Cleanup(tracker.Close)

	require.NoError(t, client.Connect(context.Background()))
	return tracker, client
}

func TestAttachBeforeConnectStillRequestsSnapshot(t *testing.T) {
	g := newPresenceGateway(t)
	tracker, _ := newConnectedTracker(t, g)

	ws := g.accept(t)
	g.expectEvent(t, realtime.EventGetOnline)

	// The authoritative snapshot reply lands in the tracker.
	require.NoError(t, ws.WriteJSON(realtime.Envelope{
		Event: realtime.EventOnlineList,
		Data:  json.RawMessage(`{"users":[{"userId":"u1","username":"ada"}],"lastSeenUsers":[]}`),
	}))
	require.Eventually(t, func() bool { return tracker.IsOnline("u1") },
		2*time.Second, 10*time.Millisecond)
}

func TestReconnectRequestsFreshSnapshot(t *testing.T) {
	g := newPresenceGateway(t)
	newConnectedTracker(t, g)

	first := g.accept(t)
	g.expectEvent(t, realtime.EventGetOnline)

	// Drop the connection: after the client redials, the snapshot must be
	// requested again so stale state gets replaced.
	_ = first.Close()
	g.accept(t)
	g.expectEvent(t, realtime.EventGetOnline)
}
