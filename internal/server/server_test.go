package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/edumate-io/edumate_client/internal/config"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

func testConfig(t *testing.T) *appconfig.AppConfig {
	t.Helper()
	return &appconfig.AppConfig{
		ServiceName:    "edumate-client",
		Version:        "test",
		Environment:    "development",
		Port:           8080,
		RequestTimeout: 30 * time.Second,
		API: appconfig.APIConfig{
			BaseURL: "https://api.edumate.example",
			Timeout: 30 * time.Second,
		},
		Realtime: appconfig.RealtimeConfig{
			URL:                   "wss://rt.edumate.example/socket",
			DialTimeout:           time.Second,
			ReconnectInitialDelay: time.Second,
			ReconnectMaxDelay:     5 * time.Second,
			MaxReconnectAttempts:  5,
		},
		CredentialsPath: filepath.Join(t.TempDir(), "creds.db"),
		Logging:         appconfig.LoggingConfig{Level: "error", Format: "text"},
		Monitoring:      appconfig.MonitoringConfig{MetricsEnabled: true, HealthCheckTimeout: time.Second},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "text", Output: io.Discard})
	s, err := New(testConfig(t), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewWiresAllComponents(t *testing.T) {
	s := newTestServer(t)

	assert.NotNil(t, s.Tutor())
	assert.NotNil(t, s.Presence())
	assert.NotNil(t, s.Realtime())
	assert.NotNil(t, s.Credentials())
	assert.False(t, s.Realtime().IsConnected())
}

func TestRouterServesLiveness(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterServesHeartbeat(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterServesMetrics(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "edumate_client")
}

func TestPresenceSnapshotEndpoint(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/presence")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot struct {
		Connected   bool `json:"connected"`
		OnlineCount int  `json:"online_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.False(t, snapshot.Connected)
	assert.Zero(t, snapshot.OnlineCount)
}
