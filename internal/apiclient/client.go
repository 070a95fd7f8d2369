// Package apiclient implements the HTTP client for the Edumate platform REST
// surface: bearer auth from the local credential store, a single refresh-token
// exchange on 401, and fail-fast propagation of everything else.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edumate-io/edumate_client/internal/credentials"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

// Sentinel errors mapped from auth-related status codes.
var (
	// ErrUnauthorized is returned after the single refresh exchange failed and
	// local credentials were purged. Callers redirect to re-authentication.
	ErrUnauthorized = errors.New("unauthorized: credentials rejected")

	// ErrForbidden is surfaced for 403 responses. Callers turn it into a
	// full-page redirect rather than a notification.
	ErrForbidden = errors.New("forbidden")
)

// APIError carries the server's status code and human-readable message for
// request errors that are propagated unchanged to the caller.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Config holds API client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration // defaults to 30s
}

// Client is the authenticated REST client. It never retries failed requests;
// the only second attempt it ever makes is the replay after a token refresh.
type Client struct {
	baseURL string
	http    *http.Client
	creds   *credentials.Store
	log     logger.Logger
}

// New creates a new API client.
func New(cfg Config, creds *credentials.Store, log logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		log:     log,
	}, nil
}

// Get issues an authenticated GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues an authenticated POST request with a JSON body and decodes the
// JSON response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Delete issues an authenticated DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do issues an authenticated request. On a 401 response it performs exactly one
// refresh-token exchange and replays the request; a failed exchange purges the
// stored credentials and returns ErrUnauthorized.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if err := c.refreshTokens(ctx); err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}
	}

	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Refreshed token was rejected too; treat like a failed exchange.
		if err := c.creds.ClearTokens(); err != nil {
			c.log.Warn("Failed to clear credentials", logger.ErrorField(err))
		}
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode >= 400:
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.creds.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := logger.GetCorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(logger.CorrelationIDHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	return resp, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// refreshTokens performs the single refresh-token exchange. On any failure the
// stored credentials are purged and ErrUnauthorized is returned.
func (c *Client) refreshTokens(ctx context.Context) error {
	tokens, err := c.creds.Tokens()
	if err != nil || tokens.Refresh == "" {
		return c.giveUpAuth()
	}

	payload, err := json.Marshal(refreshRequest{RefreshToken: tokens.Refresh})
	if err != nil {
		return c.giveUpAuth()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return c.giveUpAuth()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.giveUpAuth()
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return c.giveUpAuth()
	}

	var refreshed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil || refreshed.AccessToken == "" {
		return c.giveUpAuth()
	}

	newTokens := credentials.Tokens{Access: refreshed.AccessToken, Refresh: refreshed.RefreshToken}
	if newTokens.Refresh == "" {
		newTokens.Refresh = tokens.Refresh
	}
	if err := c.creds.SetTokens(newTokens); err != nil {
		return fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	c.log.Info("Access token refreshed")
	return nil
}

func (c *Client) giveUpAuth() error {
	if err := c.creds.ClearTokens(); err != nil {
		c.log.Warn("Failed to clear credentials", logger.ErrorField(err))
	}
	return ErrUnauthorized
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
