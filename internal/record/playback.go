package record

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"rlsim-bridge/internal/telemetry"
)

// maxLogLine bounds one JSONL record.
const maxLogLine = 1 << 20

// ReplayOptions controls ReplayLog.
type ReplayOptions struct {
	// Speed scales the recorded spacing between samples; 2 plays twice as
	// fast. Speed <= 0 replays without delay.
	Speed float64
	// RunID, when set, skips samples from other runs.
	RunID string
}

// ReplayLog feeds the JSONL samples in r to writer and returns how many were
// written. Samples are scheduled against the first replayed timestamp, so
// slow writers do not accumulate drift. Blank lines are ignored.
func ReplayLog(ctx context.Context, r io.Reader, writer SampleWriter, opts ReplayOptions) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)

	var first time.Time
	var start time.Time
	n, line := 0, 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var s telemetry.Sample
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if opts.RunID != "" && s.RunID != opts.RunID {
			continue
		}
		if opts.Speed > 0 && !s.Timestamp.IsZero() {
			if first.IsZero() {
				first, start = s.Timestamp, time.Now()
			}
			due := start.Add(time.Duration(float64(s.Timestamp.Sub(first)) / opts.Speed))
			if err := sleepUntil(ctx, due); err != nil {
				return n, err
			}
		} else if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := writer.WriteSample(s); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("line %d: %w", line+1, err)
	}
	return n, nil
}

func sleepUntil(ctx context.Context, due time.Time) error {
	d := time.Until(due)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReplayLogFile replays the sample log at path.
func ReplayLogFile(ctx context.Context, path string, writer SampleWriter, opts ReplayOptions) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open sample log: %w", err)
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, opts)
}
