package cli

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

// ChatCommand returns a command that asks the tutor a question
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask the tutor a question",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "session",
				Usage: "Session id to continue; a new session is created when omitted",
			},
			&cli.StringFlag{
				Name:  "image",
				Usage: "URL of an image attachment",
			},
		},
		Action: chatAskAction,
	}
}

func chatAskAction(ctx *cli.Context) error {
	question := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("question is required")
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

	sessionID := ctx.String("session")
	if sessionID == "" {
		session, err := deps.store.CreateSession(ctx.Context)
		if err != nil {
			return err
		}
		sessionID = session.SessionID
		fmt.Printf("session: %s\n", sessionID)
	}

	// Selecting the session makes the store track the exchange locally.
	if _, err := deps.store.History(ctx.Context, sessionID); err != nil {
		return err
	}

	reply, err := deps.store.SendWithAttachment(ctx.Context, sessionID, question, ctx.String("image"))
	if err != nil {
		return err
	}

	fmt.Println(reply.Content)
	return nil
}
