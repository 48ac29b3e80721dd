package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rlsim-bridge/internal/logging"
	"rlsim-bridge/internal/record"
)

var (
	replayInput  string
	replaySpeed  float64
	replayOutput string
	replayRunID  string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a sample log file",
	Long:  "replay feeds samples from a JSONL log back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		out, err := newWriters(cfg, replayOutput, "")
		if err != nil {
			return err
		}
		defer out.Close()
		n, err := record.ReplayLogFile(cmd.Context(), replayInput, out, record.ReplayOptions{Speed: replaySpeed, RunID: replayRunID})
		logging.FromContext(cmd.Context()).Info("replay finished", "input", replayInput, "samples", n)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to sample log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().StringVar(&replayOutput, "output", outputJSON, "Sample output: json, color, tui or none")
	replayCmd.Flags().StringVar(&replayRunID, "run", "", "Replay only samples of this run ID")
	replayCmd.MarkFlagRequired("input")
}
