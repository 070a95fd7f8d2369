package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	commands "github.com/edumate-io/edumate_client/internal/cli"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

func main() {
	// Best effort: a missing .env file is fine, real env vars win anyway.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "edumate",
		Usage:   "Edumate tutoring platform client",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			// Initialize global logger from flags
			logLevel := logger.ParseLevel(ctx.String("log-level"))
			log := logger.NewLogger(logger.Config{
				Level:   logLevel,
				Format:  ctx.String("log-format"),
				Service: "edumate-client",
			})

			// Store logger in context for commands to use
			ctx.App.Metadata = map[string]interface{}{
				"logger": log,
			}

			return nil
		},
		Commands: []*cli.Command{
			commands.ConfigCommand(),
			commands.AuthCommand(),
			commands.SessionsCommand(),
			commands.ChatCommand(),
			commands.PresenceCommand(),
			commands.DaemonCommand(),
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
