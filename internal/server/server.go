// Package server wires the client components together and exposes the local
// ops HTTP surface (health, metrics, presence snapshot).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-multierror"

	"github.com/edumate-io/edumate_client/internal/apiclient"
	appconfig "github.com/edumate-io/edumate_client/internal/config"
	"github.com/edumate-io/edumate_client/internal/credentials"
	"github.com/edumate-io/edumate_client/internal/monitoring"
	"github.com/edumate-io/edumate_client/internal/presence"
	"github.com/edumate-io/edumate_client/internal/realtime"
	"github.com/edumate-io/edumate_client/internal/tutor"
	"github.com/edumate-io/edumate_client/pkg/httpmiddleware"
	"github.com/edumate-io/edumate_client/pkg/logger"
	"github.com/edumate-io/edumate_client/pkg/metrics"
	"github.com/edumate-io/edumate_client/pkg/utils"
)

// Server encapsulates all client components and lifecycle management
type Server struct {
	cfg     *appconfig.AppConfig
	log     logger.Logger
	metrics metrics.Metrics

	creds    *credentials.Store
	api      *apiclient.Client
	tutor    *tutor.Store
	realtime *realtime.Client
	presence *presence.Tracker
	monitor  *monitoring.HealthMonitor

	cancel context.CancelFunc
}

// New creates a new Server instance with all components initialized
func New(cfg *appconfig.AppConfig, log logger.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewMetrics(true, true, true, log),
	}

	var err error
	s.creds, err = credentials.Open(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	s.api, err = apiclient.New(cfg.GetAPIConfig(), s.creds, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	s.tutor, err = tutor.New(s.api, log, &s.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create tutor store: %w", err)
	}

	s.realtime, err = realtime.NewClient(cfg.GetRealtimeConfig(), s.creds, log, &s.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime client: %w", err)
	}

	s.presence = presence.New(log)
	s.presence.Attach(s.realtime)

	s.monitor = monitoring.NewHealthMonitor(monitoring.Config{
		Logger:       log,
		Version:      cfg.Version,
		TutorAPIURL:  cfg.API.BaseURL,
		RealtimeConn: s.realtime,
		Timeout:      cfg.Monitoring.HealthCheckTimeout,
	})

	return s, nil
}

// Tutor returns the chat session store.
func (s *Server) Tutor() *tutor.Store { return s.tutor }

// Presence returns the presence tracker.
func (s *Server) Presence() *presence.Tracker { return s.presence }

// Realtime returns the websocket client.
func (s *Server) Realtime() *realtime.Client { return s.realtime }

// Credentials returns the credential store.
func (s *Server) Credentials() *credentials.Store { return s.creds }

// Run connects to the realtime gateway, starts the ops HTTP server and blocks
// until shutdown
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	s.setupGracefulShutdown()

	// Best effort: without stored credentials this logs a warning and the
	// connection is established after login.
	if err := s.realtime.Connect(ctx); err != nil {
		s.log.Warn("Initial realtime connection failed", logger.ErrorField(err))
	}

	opsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Ops server listening", logger.IntField("port", s.cfg.Port))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-utils.MergeErrorChans(errCh):
		return fmt.Errorf("ops server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	var result error
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("ops server shutdown: %w", err))
	}
	if err := s.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	return result
}

// Close releases the realtime connection and the credential store.
func (s *Server) Close() error {
	var result error

	s.presence.Close()
	s.realtime.Close()
	if err := s.creds.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("credential store close: %w", err))
	}

	return result
}

// Router builds the ops HTTP router with the standard middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	mw := httpmiddleware.WithLogger(s.log)
	if len(s.cfg.Security.CORSAllowedOrigins) > 0 {
		mw.CORS.AllowedOrigins = s.cfg.Security.CORSAllowedOrigins
	}
	mw.Timeout = s.cfg.RequestTimeout
	httpmiddleware.ApplyToRouter(r, mw)

	r.Use(s.metrics.HTTPMiddleware())

	r.Get("/health", s.monitor.HealthHandler())
	r.Get("/health/live", s.monitor.LivenessHandler())
	r.Get("/health/ready", s.monitor.ReadinessHandler())

	if s.cfg.Monitoring.MetricsEnabled {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Get("/v1/presence", s.presenceHandler)

	return r
}

// presenceHandler serves the current presence snapshot.
func (s *Server) presenceHandler(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Connected   bool                  `json:"connected"`
		OnlineCount int                   `json:"online_count"`
		OnlineUsers []realtime.OnlineUser `json:"online_users"`
	}{
		Connected:   s.realtime.IsConnected(),
		OnlineCount: s.presence.OnlineCount(),
		OnlineUsers: s.presence.OnlineUsers(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.Error("Failed to encode presence snapshot", logger.ErrorField(err))
	}
}

// setupGracefulShutdown sets up signal handling for graceful shutdown
func (s *Server) setupGracefulShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		s.log.Info("Received shutdown signal", logger.StringField("signal", sig.String()))

		if s.cancel != nil {
			s.cancel()
		}

		// Give components time to shut down gracefully, then force exit
		time.AfterFunc(30*time.Second, func() {
			s.log.Warn("Force exiting due to timeout")
			os.Exit(1)
		})
	}()
}
