package commands

import "marketplace-chat/internal/config"

// Flags holds global flag values and the config loaded before any subcommand runs.
type Flags struct {
	LogLevel string
	EnvFile  string
	Config   config.Config
}
