package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/edumate-io/edumate_client/internal/apiclient"
	appconfig "github.com/edumate-io/edumate_client/internal/config"
	"github.com/edumate-io/edumate_client/internal/credentials"
	"github.com/edumate-io/edumate_client/internal/tutor"
	"github.com/edumate-io/edumate_client/pkg/config"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}

	// Fallback to default logger if not found
	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "text",
		Service: "edumate-cli",
	})
}

// loadConfig loads and validates the application configuration
func loadConfig(ctx *cli.Context) (*appconfig.AppConfig, error) {
	cfg := &appconfig.AppConfig{}
	if err := config.GetConfig(cfg, ctx.String("config-file"), true); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// tutorDeps bundles the components a one-shot tutor command needs.
type tutorDeps struct {
	creds *credentials.Store
	store *tutor.Store
}

func (d *tutorDeps) close() {
	_ = d.creds.Close()
}

// buildTutorDeps opens the credential store and constructs the REST client
// and session store from configuration.
func buildTutorDeps(cfg *appconfig.AppConfig, log logger.Logger) (*tutorDeps, error) {
	creds, err := credentials.Open(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	api, err := apiclient.New(cfg.GetAPIConfig(), creds, log)
	if err != nil {
		_ = creds.Close()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	store, err := tutor.New(api, log, nil)
	if err != nil {
		_ = creds.Close()
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	return &tutorDeps{creds: creds, store: store}, nil
}
