package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"marketplace-chat/internal/db"
)

type MigrateCmd struct {
	flags *Flags
}

func NewMigrateCmd(flags *Flags) *MigrateCmd {
	return &MigrateCmd{flags: flags}
}

// Register adds the migrate command to the application
func (cmd *MigrateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "migrate",
		Usage:       "Create or update the database schema",
		UsageText:   "marketplace-chat migrate",
		Description: "Applies the idempotent schema for users, rooms, participants, messages and notifications.",
		Action:      cmd.run,
	})
	return app
}

func (cmd *MigrateCmd) run(ctx context.Context, _ *cli.Command) error {
	database, err := db.Connect(ctx, cmd.flags.Config.DBDSN)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("schema up to date")
	return nil
}
