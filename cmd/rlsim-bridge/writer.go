package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"rlsim-bridge/internal/config"
	"rlsim-bridge/internal/record"
)

// Output modes for sample writers.
const (
	outputJSON  = "json"
	outputColor = "color"
	outputTUI   = "tui"
	outputNone  = "none"
)

// sink is a sample writer that also takes episode summaries.
type sink interface {
	record.SampleWriter
	record.EpisodeWriter
	Close() error
}

// newWriters sets up the sample writers based on flags and config. The
// returned sink closes every writer it owns.
func newWriters(cfg *config.BridgeConfig, output, logFile string) (sink, error) {
	var ws []record.SampleWriter
	base, err := baseWriter(output)
	if err != nil {
		return nil, err
	}
	if base != nil {
		ws = append(ws, base)
	}
	if cfg != nil && cfg.Greptime.Enabled {
		gw, err := record.NewGreptimeDBWriter(record.GreptimeOptions{
			Host:      cfg.Greptime.Host,
			Port:      cfg.Greptime.Port,
			Database:  cfg.Greptime.Database,
			BatchSize: cfg.Greptime.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		ws = append(ws, gw)
	}
	if logFile != "" {
		fw, err := record.NewFileWriter(logFile, logFile+".episodes")
		if err != nil {
			return nil, err
		}
		ws = append(ws, fw)
	}
	return record.NewMultiWriter(ws...), nil
}

// baseWriter chooses the console writer. The TUI falls back to color output
// when STDOUT is not a terminal.
func baseWriter(output string) (record.SampleWriter, error) {
	switch output {
	case outputJSON:
		return record.NewJSONStdoutWriter(), nil
	case outputColor, "":
		return record.NewColorStdoutWriter(), nil
	case outputTUI:
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return record.NewColorStdoutWriter(), nil
		}
		return record.NewTUIWriter("rlsim-bridge episodes"), nil
	case outputNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown output %q (want json, color, tui or none)", output)
	}
}
