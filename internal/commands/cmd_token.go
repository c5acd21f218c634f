package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"marketplace-chat/internal/auth"
)

// TokenCmd mints access tokens for local testing.
type TokenCmd struct {
	flags    *Flags
	userID   int
	username string
	email    string
	ttl      time.Duration
}

func NewTokenCmd(flags *Flags) *TokenCmd {
	return &TokenCmd{flags: flags}
}

// Register adds the token command to the application
func (cmd *TokenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "token",
		Usage:     "Issue an HS256 access token for local testing",
		UsageText: "marketplace-chat token --user-id 42 --username alice",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "user-id",
				Usage:       "user id placed in the user_id claim",
				Required:    true,
				Destination: &cmd.userID,
			},
			&cli.StringFlag{
				Name:        "username",
				Usage:       "username claim",
				Destination: &cmd.username,
			},
			&cli.StringFlag{
				Name:        "email",
				Usage:       "email claim",
				Destination: &cmd.email,
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Usage:       "token lifetime",
				Value:       time.Hour,
				Destination: &cmd.ttl,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *TokenCmd) run(_ context.Context, _ *cli.Command) error {
	if cmd.userID <= 0 {
		return errors.New("--user-id must be positive")
	}

	cfg := cmd.flags.Config
	token, err := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer).Issue(auth.Identity{
		UserID:   int64(cmd.userID),
		Username: cmd.username,
		Email:    cmd.email,
	}, cmd.ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	_, err = fmt.Fprintln(os.Stdout, token)
	return err
}
