package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/edumate-io/edumate_client/internal/apiclient"
	"github.com/edumate-io/edumate_client/internal/realtime"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Service configuration
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"edumate-client"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	// Local ops server configuration
	Port           int           `env:"PORT" yaml:"port" default:"8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" yaml:"request_timeout" default:"30s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" yaml:"idle_timeout" default:"60s"`

	// Tutor API configuration
	API APIConfig `yaml:"api,inline"`

	// Realtime gateway configuration
	Realtime RealtimeConfig `yaml:"realtime,inline"`

	// Credential storage
	CredentialsPath string `env:"CREDENTIALS_PATH" yaml:"credentials_path" default:"edumate.db"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,inline"`

	// Monitoring configuration
	Monitoring MonitoringConfig `yaml:"monitoring,inline"`

	// Security configuration
	Security SecurityConfig `yaml:"security,inline"`
}

// APIConfig holds tutor REST API configuration
type APIConfig struct {
	BaseURL string        `env:"API_BASE_URL" yaml:"base_url" required:"true"`
	Timeout time.Duration `env:"API_TIMEOUT" yaml:"timeout" default:"30s"`
}

// RealtimeConfig holds websocket gateway configuration
type RealtimeConfig struct {
	URL                   string        `env:"REALTIME_URL" yaml:"url" required:"true"`
	DialTimeout           time.Duration `env:"REALTIME_DIAL_TIMEOUT" yaml:"dial_timeout" default:"10s"`
	ReconnectInitialDelay time.Duration `env:"REALTIME_RECONNECT_INITIAL_DELAY" yaml:"reconnect_initial_delay" default:"1s"`
	ReconnectMaxDelay     time.Duration `env:"REALTIME_RECONNECT_MAX_DELAY" yaml:"reconnect_max_delay" default:"5s"`
	MaxReconnectAttempts  int           `env:"REALTIME_MAX_RECONNECT_ATTEMPTS" yaml:"max_reconnect_attempts" default:"5"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level" default:"info"`
	Format string `env:"LOG_FORMAT" yaml:"format" default:"json"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" yaml:"health_check_timeout" default:"10s"`
	MetricsEnabled     bool          `env:"METRICS_ENABLED" yaml:"metrics_enabled" default:"true"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" yaml:"cors_allowed_origins" default:"http://localhost:3000,http://localhost:8080"`
}

// Validate validates the configuration and returns an error if invalid
func (c *AppConfig) Validate() error {
	var result error

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	level := strings.ToLower(c.Logging.Level)
	valid := false
	for _, validLevel := range validLevels {
		if level == validLevel {
			valid = true
			break
		}
	}
	if !valid {
		result = multierror.Append(result, fmt.Errorf("log_level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}

	// Validate log format
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		result = multierror.Append(result, fmt.Errorf("log_format must be either 'json' or 'text', got %q", c.Logging.Format))
	}

	// Validate port range
	if c.Port < 1 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}

	// Validate timeout values
	if c.RequestTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("request_timeout must be greater than 0"))
	}

	if c.API.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("api_timeout must be greater than 0"))
	}

	// Validate realtime config
	if !strings.HasPrefix(c.Realtime.URL, "ws://") && !strings.HasPrefix(c.Realtime.URL, "wss://") {
		result = multierror.Append(result, fmt.Errorf("realtime_url must use ws:// or wss:// scheme, got %q", c.Realtime.URL))
	}

	if c.Realtime.ReconnectInitialDelay <= 0 {
		result = multierror.Append(result, fmt.Errorf("realtime_reconnect_initial_delay must be greater than 0"))
	}

	if c.Realtime.ReconnectMaxDelay < c.Realtime.ReconnectInitialDelay {
		result = multierror.Append(result, fmt.Errorf("realtime_reconnect_max_delay must be greater than or equal to realtime_reconnect_initial_delay"))
	}

	if c.Realtime.MaxReconnectAttempts < 0 {
		result = multierror.Append(result, fmt.Errorf("realtime_max_reconnect_attempts cannot be negative"))
	}

	if c.CredentialsPath == "" {
		result = multierror.Append(result, fmt.Errorf("credentials_path must not be empty"))
	}

	return result
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return logger.DebugLevel
	case "warn", "warning":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	env := strings.ToLower(c.Environment)
	return env == "development" || env == "dev"
}

// GetRealtimeConfig returns the websocket client configuration
func (c *AppConfig) GetRealtimeConfig() realtime.Config {
	return realtime.Config{
		URL:                   c.Realtime.URL,
		DialTimeout:           c.Realtime.DialTimeout,
		ReconnectInitialDelay: c.Realtime.ReconnectInitialDelay,
		ReconnectMaxDelay:     c.Realtime.ReconnectMaxDelay,
		MaxReconnectAttempts:  c.Realtime.MaxReconnectAttempts,
	}
}

// GetAPIConfig returns the tutor REST client configuration
func (c *AppConfig) GetAPIConfig() apiclient.Config {
	return apiclient.Config{
		BaseURL: c.API.BaseURL,
		Timeout: c.API.Timeout,
	}
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("environment", c.Environment),
		logger.IntField("port", c.Port),
		logger.StringField("api_base_url", c.API.BaseURL),
		logger.StringField("realtime_url", c.Realtime.URL),
		logger.IntField("max_reconnect_attempts", c.Realtime.MaxReconnectAttempts),
		logger.StringField("credentials_path", c.CredentialsPath),
		logger.StringField("log_level", c.Logging.Level),
		logger.StringField("log_format", c.Logging.Format),
		logger.BoolField("metrics_enabled", c.Monitoring.MetricsEnabled),
	)
}
