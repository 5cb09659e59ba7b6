package main

import (
	"fmt"
	"log/slog"
	"neptunium/cmd/neptunium/config"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "neptunium",
		Short: "Authenticated packet sessions over TCP or WebSocket",
		Long: `neptunium runs a small chat room on top of the neptunium packet protocol.

Start a room with "neptunium serve" and join it with "neptunium connect".
Both ends read the same TOML configuration file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(
		serveCmd(&flags),
		connectCmd(&flags),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func loadConfig(flags *globalFlags) (config.Config, *slog.Logger, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		var err error
		if cfg, err = config.Load(flags.configPath); err != nil {
			return config.Config{}, nil, err
		}
	}

	if flags.logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(flags.logLevel)); err != nil {
			return config.Config{}, nil, err
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return cfg, logger, nil
}
