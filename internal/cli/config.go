package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/edumate-io/edumate_client/pkg/logger"
)

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Subcommands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
			},
			{
				Name:   "show",
				Usage:  "Show the effective configuration (without sensitive data)",
				Action: configShowAction,
			},
		},
	}
}

func configValidateAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	log.Info("Validating configuration")

	if _, err := loadConfig(ctx); err != nil {
		log.Error("Configuration validation failed", logger.ErrorField(err))
		return err
	}

	log.Info("Configuration validation passed")
	fmt.Println("Configuration is valid")
	return nil
}

func configShowAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("service:          %s (%s)\n", cfg.ServiceName, cfg.Version)
	fmt.Printf("environment:      %s\n", cfg.Environment)
	fmt.Printf("api base url:     %s\n", cfg.API.BaseURL)
	fmt.Printf("realtime url:     %s\n", cfg.Realtime.URL)
	fmt.Printf("credentials path: %s\n", cfg.CredentialsPath)
	fmt.Printf("log level:        %s\n", cfg.Logging.Level)
	return nil
}
