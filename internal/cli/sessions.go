package cli

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/edumate-io/edumate_client/internal/tutor"
)

// SessionsCommand returns a command for tutor session operations
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"s"},
		Usage:   "Tutor session operations",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List existing tutor sessions",
				Action: sessionsListAction,
			},
			{
				Name:   "new",
				Usage:  "Create a new tutor session",
				Action: sessionsNewAction,
			},
			{
				Name:      "history",
				Usage:     "Show the message history of a session",
				ArgsUsage: "<session-id>",
				Action:    sessionsHistoryAction,
			},
			{
				Name:      "delete",
				Usage:     "Delete a session",
				ArgsUsage: "<session-id>",
				Action:    sessionsDeleteAction,
			},
		},
	}
}

func sessionsListAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	deps, err := buildTutorDeps(cfg, getLogger(ctx))
	if err != nil {
		return err
	}
	defer deps.close()

	sessions, err := deps.store.Sessions(ctx.Context)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  created %s  (%d messages)\n",
			s.SessionID, s.CreatedAt.Local().Format(time.RFC3339), s.MessageCount)
	}
	return nil
}

func sessionsNewAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	deps, err := buildTutorDeps(cfg, getLogger(ctx))
	if err != nil {
		return err
	}
	defer deps.close()

	session, err := deps.store.CreateSession(ctx.Context)
	if err != nil {
		return err
	}

	fmt.Println(session.SessionID)
	return nil
}

func sessionsHistoryAction(ctx *cli.Context) error {
	sessionID := ctx.Args().First()
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	deps, err := buildTutorDeps(cfg, getLogger(ctx))
	if err != nil {
		return err
	}
	defer deps.close()

	messages, err := deps.store.History(ctx.Context, sessionID)
	if err != nil {
		return err
	}

	printMessages(messages)
	return nil
}

func sessionsDeleteAction(ctx *cli.Context) error {
	sessionID := ctx.Args().First()
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	deps, err := buildTutorDeps(cfg, getLogger(ctx))
	if err != nil {
		return err
	}
	defer deps.close()

	if err := deps.store.DeleteSession(ctx.Context, sessionID); err != nil {
		return err
	}

	deps.store.ClearActive()
	fmt.Println("Deleted", sessionID)
	return nil
}

func printMessages(messages []tutor.Message) {
	for _, m := range messages {
		prefix := "tutor"
		if m.Role == tutor.RoleUser {
			prefix = "you"
		}
		fmt.Printf("[%s] %s\n", prefix, m.Content)
		if m.ImageURL != "" {
			fmt.Printf("      attachment: %s\n", m.ImageURL)
		}
	}
}
