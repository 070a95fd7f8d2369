package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumate-io/edumate_client/internal/credentials"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "text", Output: io.Discard})
}

func newTestClient(t *testing.T, baseURL string) (*Client, *credentials.Store) {
	t.Helper()
	store, err := credentials.Open(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SetTokens(credentials.Tokens{Access: "old-access", Refresh: "valid-refresh"}))

	c, err := New(Config{BaseURL: baseURL}, store, testLogger())
	require.NoError(t, err)
	return c, store
}

func TestNewValidation(t *testing.T) {
	store, err := credentials.Open(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = New(Config{}, store, testLogger())
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "http://api"}, nil, testLogger())
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "http://api"}, store, nil)
	assert.Error(t, err)
}

func TestGetSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "/api/sessions", &out))
	assert.Equal(t, "Bearer old-access", gotAuth)
	assert.Equal(t, "ok", out["status"])
}

func TestUnauthorizedTriggersSingleRefreshAndReplay(t *testing.T) {
	var apiCalls, refreshCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		apiCalls++
		if r.Header.Get("Authorization") != "Bearer new-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "valid-refresh", req["refresh_token"])
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)

	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "/api/sessions", &out))

	assert.Equal(t, 2, apiCalls)
	assert.Equal(t, 1, refreshCalls)

	tokens, err := store.Tokens()
	require.NoError(t, err)
	assert.Equal(t, "new-access", tokens.Access)
	assert.Equal(t, "new-refresh", tokens.Refresh)
}

func TestFailedRefreshPurgesCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)

	err := c.Get(context.Background(), "/api/sessions", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	tokens, terr := store.Tokens()
	require.NoError(t, terr)
	assert.Empty(t, tokens.Access)
	assert.Empty(t, tokens.Refresh)
}

func TestRefreshNotAttemptedWithoutRefreshToken(t *testing.T) {
	var refreshCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	require.NoError(t, store.SetTokens(credentials.Tokens{Access: "only-access"}))

	err := c.Get(context.Background(), "/api/sessions", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, refreshCalls)
}

func TestForbiddenSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	err := c.Get(context.Background(), "/api/sessions", nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRequestErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "question must not be empty"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	err := c.Post(context.Background(), "/api/chat/query", map[string]string{}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "question must not be empty")
}

func TestServerErrorsAreNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	err := c.Get(context.Background(), "/api/sessions", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestDefaultTimeout(t *testing.T) {
	c, _ := newTestClient(t, "http://example.invalid")
	assert.Equal(t, 30*time.Second, c.http.Timeout)
}

func TestDeleteSendsNoBody(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.Delete(context.Background(), "/api/sessions/session-1"))
	assert.Equal(t, http.MethodDelete, method)
}
