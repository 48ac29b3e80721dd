package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rlsim-bridge/internal/logging"
	"rlsim-bridge/internal/orchestrator"
	"rlsim-bridge/internal/record"
	"rlsim-bridge/internal/scenario"
)

var (
	epNames   []string
	epFiles   []string
	epRepeat  int
	epOutput  string
	epLogFile string
)

var episodeCmd = &cobra.Command{
	Use:   "episode",
	Short: "Drive episodes against a running bridge",
	Long:  "episode connects to the control server, resets the simulator for each episode and steps it through the episode's force schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.FromContext(cmd.Context())
		episodes, err := selectEpisodes(epNames, epFiles)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out, err := newWriters(cfg, epOutput, epLogFile)
		if err != nil {
			return err
		}
		defer out.Close()

		client, err := orchestrator.Dial(ctx, orchestrator.Options{
			ControlAddr:   cfg.Control.Addr,
			TelemetryAddr: cfg.Telemetry.Addr,
			AcceptTimeout: cfg.Telemetry.AcceptTimeout,
			AckTimeout:    cfg.Control.AckTimeout,
			ReadTimeout:   cfg.Telemetry.ReadTimeout,
			WriteTimeout:  cfg.Telemetry.WriteTimeout,
			Writer:        out,
			Logger:        log.With("component", "orchestrator"),
		})
		if err != nil {
			return err
		}

		var runErr error
	loop:
		for i := 0; i < epRepeat; i++ {
			for _, ep := range episodes {
				res, err := orchestrator.RunEpisode(ctx, client, ep, nil)
				if err != nil {
					runErr = err
					break loop
				}
				if err := out.WriteEpisode(episodeRow(res)); err != nil {
					log.Warn("episode summary write failed", "episode", res.Name, "err", err)
				}
			}
		}
		if err := client.Close(); err != nil {
			log.Warn("client close failed", "err", err)
		}
		if errors.Is(runErr, context.Canceled) {
			return nil
		}
		return runErr
	},
}

func episodeRow(r orchestrator.EpisodeResult) record.EpisodeRow {
	return record.EpisodeRow{
		Name:           r.Name,
		RunID:          r.RunID,
		Steps:          r.Steps,
		FinalX:         r.Final.X,
		FinalY:         r.Final.Y,
		FinalHeading:   r.Final.Heading,
		Distance:       r.Distance,
		ElapsedSeconds: r.Elapsed.Seconds(),
		Timestamp:      time.Now().UTC(),
	}
}

// selectEpisodes resolves built-in names and episode files, in that order.
// With neither given every built-in episode runs.
func selectEpisodes(names, files []string) ([]scenario.Episode, error) {
	builtIn := scenario.BuiltIn()
	if len(names) == 0 && len(files) == 0 {
		for n := range builtIn {
			names = append(names, n)
		}
		sort.Strings(names)
	}
	var eps []scenario.Episode
	for _, n := range names {
		ep, ok := builtIn[n]
		if !ok {
			return nil, fmt.Errorf("unknown episode %q", n)
		}
		eps = append(eps, ep)
	}
	for _, f := range files {
		ep, err := scenario.Load(f)
		if err != nil {
			return nil, err
		}
		eps = append(eps, *ep)
	}
	return eps, nil
}

func init() {
	episodeCmd.Flags().StringSliceVar(&epNames, "name", nil, "Built-in episode to run (repeatable)")
	episodeCmd.Flags().StringSliceVar(&epFiles, "file", nil, "Episode YAML file to run (repeatable)")
	episodeCmd.Flags().IntVar(&epRepeat, "repeat", 1, "Number of passes over the selected episodes")
	episodeCmd.Flags().StringVar(&epOutput, "output", outputColor, "Sample output: json, color, tui or none")
	episodeCmd.Flags().StringVar(&epLogFile, "log-file", "", "Path to export samples (JSONL); episodes go to <path>.episodes")
}
