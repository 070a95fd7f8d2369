package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/edumate-io/edumate_client/internal/credentials"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

// AuthCommand returns a command for credential management
func AuthCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Credential management",
		Subcommands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Store access and refresh tokens",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "access-token", Required: true, Usage: "Bearer token for the tutor API"},
					&cli.StringFlag{Name: "refresh-token", Usage: "Refresh token used when the bearer token expires"},
				},
				Action: authLoginAction,
			},
			{
				Name:   "logout",
				Usage:  "Remove stored tokens",
				Action: authLogoutAction,
			},
			{
				Name:   "status",
				Usage:  "Show whether credentials are stored",
				Action: authStatusAction,
			},
		},
	}
}

func withCredentialStore(ctx *cli.Context, fn func(*credentials.Store) error) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	creds, err := credentials.Open(cfg.CredentialsPath)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer func() { _ = creds.Close() }()

	return fn(creds)
}

func authLoginAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	return withCredentialStore(ctx, func(creds *credentials.Store) error {
		err := creds.SetTokens(credentials.Tokens{
			Access:  ctx.String("access-token"),
			Refresh: ctx.String("refresh-token"),
		})
		if err != nil {
			return fmt.Errorf("failed to store tokens: %w", err)
		}

		log.Info("Credentials stored")
		fmt.Println("Logged in")
		return nil
	})
}

func authLogoutAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	return withCredentialStore(ctx, func(creds *credentials.Store) error {
		if err := creds.ClearTokens(); err != nil {
			return fmt.Errorf("failed to clear tokens: %w", err)
		}

		log.Info("Credentials removed", logger.StringField("store", "local"))
		fmt.Println("Logged out")
		return nil
	})
}

func authStatusAction(ctx *cli.Context) error {
	return withCredentialStore(ctx, func(creds *credentials.Store) error {
		if creds.AccessToken() == "" {
			fmt.Println("Not logged in")
			return nil
		}
		fmt.Println("Logged in")
		return nil
	})
}
