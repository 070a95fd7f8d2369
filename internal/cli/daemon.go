package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/edumate-io/edumate_client/internal/server"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

// DaemonCommand returns a command that runs the client as a long-lived process
func DaemonCommand() *cli.Command {
	return &cli.Command{
		Name:    "daemon",
		Aliases: []string{"d"},
		Usage:   "Run the client daemon with the ops HTTP server",
		Action:  daemonAction,
	}
}

func daemonAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("Failed to load configuration", logger.ErrorField(err))
		return err
	}

	cfg.LogConfig(log)

	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	log.Info("Starting edumate client daemon",
		logger.StringField("version", cfg.Version),
		logger.StringField("environment", cfg.Environment))

	return srv.Run(ctx.Context)
}
