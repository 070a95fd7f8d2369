package cli

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/edumate-io/edumate_client/internal/credentials"
	"github.com/edumate-io/edumate_client/internal/presence"
	"github.com/edumate-io/edumate_client/internal/realtime"
)

// PresenceCommand returns a command that shows who is currently online
func PresenceCommand() *cli.Command {
	return &cli.Command{
		Name:  "presence",
		Usage: "Show currently online users",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "wait",
				Value: 2 * time.Second,
				Usage: "How long to wait for the presence snapshot",
			},
		},
		Action: presenceAction,
	}
}

func presenceAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	creds, err := credentials.Open(cfg.CredentialsPath)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer func() { _ = creds.Close() }()

	if creds.AccessToken() == "" {
		return fmt.Errorf("not logged in, run 'auth login' first")
	}

	conn, err := realtime.NewClient(cfg.GetRealtimeConfig(), creds, log, nil)
	if err != nil {
		return fmt.Errorf("failed to create realtime client: %w", err)
	}
	defer conn.Close()

	tracker := presence.New(log)
	tracker.Attach(conn)
	defer tracker.Close()

	if err := conn.Connect(ctx.Context); err != nil {
		return fmt.Errorf("failed to connect to realtime gateway: %w", err)
	}

	// The snapshot arrives asynchronously after the online-list request.
	select {
	case <-time.After(ctx.Duration("wait")):
	case <-ctx.Context.Done():
		return ctx.Context.Err()
	}

	users := tracker.OnlineUsers()
	if len(users) == 0 {
		fmt.Println("Nobody online")
		return nil
	}

	fmt.Printf("%d online:\n", len(users))
	for _, u := range users {
		name := u.FullName
		if name == "" {
			name = u.Username
		}
		fmt.Printf("  %s (%s)\n", name, u.Role)
	}
	return nil
}
