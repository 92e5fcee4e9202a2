package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/sensorlog/pkg/config"
)

// configureLogger creates a logger from the loaded configuration, with the
// --log-level flag taking precedence over the config file.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		switch flagLevel {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = flagLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", flagLevel)
		}
	}
	return cfg.NewLogger()
}

// loadConfig reads the config file named by the --config flag, or the
// defaults when the flag is unset.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
