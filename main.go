package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"marketplace-chat/internal/commands"
	"marketplace-chat/internal/config"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func main() {
	if err := setupLogger("info", ""); err != nil {
		panic(err)
	}

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "marketplace-chat",
		Usage:     "Real-time chat and notifications for marketplace rooms",
		UsageText: "marketplace-chat [global options] command [command options]",
		Version:   fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error); overrides LOG_LEVEL",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log output format (console, json)",
				Sources:     cli.EnvVars("LOG_FORMAT"),
				Value:       "console",
			},
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "dotenv file loaded before reading the environment",
				Value:       ".env",
				Destination: &flags.EnvFile,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load(flags.EnvFile)
			if err != nil {
				return ctx, err
			}
			flags.Config = cfg

			level := cfg.LogLevel
			if flags.LogLevel != "" {
				level = flags.LogLevel
			}
			if err := setupLogger(level, c.String("log-format")); err != nil {
				return ctx, err
			}
			if cfg.Environment != "local" {
				gin.SetMode(gin.ReleaseMode)
			}
			return ctx, nil
		},
	}

	app = commands.NewServeCmd(flags).Register(app)
	app = commands.NewMigrateCmd(flags).Register(app)
	app = commands.NewTokenCmd(flags).Register(app)

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("marketplace-chat failed")
		os.Exit(1)
	}
}

func setupLogger(level, format string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if format == "json" {
		output = os.Stderr
	}

	log.Logger = zerolog.New(output).With().Timestamp().Str("service", "marketplace-chat").Logger().Level(parsedLevel)
	return nil
}
