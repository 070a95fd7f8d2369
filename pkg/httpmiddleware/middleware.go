// Package httpmiddleware wires the standard middleware set onto chi routers.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"

	"github.com/edumate-io/edumate_client/pkg/logger"
)

// Config holds configuration for HTTP middleware application.
// Use DefaultConfig() for sensible defaults, then customize as needed.
type Config struct {
	Logger   logger.Logger   // Required for logging middleware
	CORS     *CORSConfig     // CORS configuration
	Security *secure.Options // Security headers configuration
	Timeout  time.Duration   // Request timeout duration

	EnableCorrelationID bool // Add correlation ID to requests
	EnableLogging       bool // Log HTTP requests (requires Logger)
	EnableRecovery      bool // Recover from panics
	EnableCORS          bool // Enable CORS headers
	EnableSecurity      bool // Add security headers
	EnableHeartbeat     bool // Add /ping health endpoint
	EnableRealIP        bool // Extract real client IP
	EnableTimeout       bool // Add request timeouts
}

// DefaultConfig returns a production-ready middleware configuration.
// Logging is disabled by default - set Logger and EnableLogging=true to enable.
func DefaultConfig() Config {
	corsConfig := DefaultCORSConfig()
	return Config{
		Logger:   nil,
		CORS:     &corsConfig,
		Security: nil, // secure package defaults
		Timeout:  60 * time.Second,

		EnableCorrelationID: true,
		EnableLogging:       false,
		EnableRecovery:      true,
		EnableCORS:          true,
		EnableSecurity:      true,
		EnableHeartbeat:     true,
		EnableRealIP:        true,
		EnableTimeout:       true,
	}
}

// WithLogger returns a default configuration with request logging enabled.
func WithLogger(l logger.Logger) Config {
	cfg := DefaultConfig()
	cfg.Logger = l
	cfg.EnableLogging = true
	return cfg
}

// CorrelationID ensures every request carries a correlation ID header and context value.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, id := logger.EnsureHTTPCorrelationID(r)
		w.Header().Set(logger.CorrelationIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// ApplyToRouter applies the configured middleware to a chi router in the
// recommended order (first applied = outermost layer).
func ApplyToRouter(router chi.Router, config Config) {
	if config.EnableCorrelationID {
		router.Use(CorrelationID)
	}
	if config.EnableSecurity {
		router.Use(Security(config.Security))
	}
	if config.EnableRealIP {
		router.Use(middleware.RealIP)
	}
	if config.EnableLogging && config.Logger != nil {
		router.Use(logger.HTTPMiddleware(config.Logger))
	}
	if config.EnableRecovery {
		router.Use(middleware.Recoverer)
	}
	if config.EnableCORS && config.CORS != nil {
		router.Use(CORS(*config.CORS))
	}
	if config.EnableTimeout && config.Timeout > 0 {
		router.Use(middleware.Timeout(config.Timeout))
	}
	if config.EnableHeartbeat {
		router.Use(middleware.Heartbeat("/ping"))
	}
}
