package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"rlsim-bridge/internal/config"
	"rlsim-bridge/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string

	cfg       *config.BridgeConfig
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "rlsim-bridge",
	Short: "RL training to physics simulator bridge",
	Long:  "rlsim-bridge runs the simulator-side control server and the RL-side episode client.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath, schemaPath)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		if logLevel != "" {
			c.Logging.Level = logLevel
		}
		cfg = c
		log, closer := logging.NewWithOptions(logging.Options{
			Level:      c.Logging.Level,
			JSON:       c.Logging.JSON,
			File:       c.Logging.File,
			MaxSizeMB:  c.Logging.MaxSizeMB,
			MaxBackups: c.Logging.MaxBackups,
		})
		logCloser = closer
		slog.SetDefault(log)
		cmd.SetContext(logging.NewContext(cmd.Context(), log))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to bridge configuration YAML (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "schemas/bridge.cue", "Path to CUE schema file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(episodeCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}
