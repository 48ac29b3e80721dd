package record

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func encodeSamples(t *testing.T, spacing time.Duration, ticks ...int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	base := time.Unix(0, 0).UTC()
	for i, tick := range ticks {
		s := testSample(tick)
		s.Timestamp = base.Add(time.Duration(i) * spacing)
		if err := enc.Encode(s); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	return &buf
}

func TestReplayLog(t *testing.T) {
	r := &recorder{}
	n, err := ReplayLog(context.Background(), encodeSamples(t, 10*time.Millisecond, 1, 2, 3), r, ReplayOptions{})
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if n != 3 || len(r.samples) != 3 {
		t.Fatalf("replayed %d samples", n)
	}
	if r.samples[2].Tick != 3 || r.samples[2].Pose.X != 1.5 {
		t.Fatalf("unexpected sample %+v", r.samples[2])
	}
}

func TestReplayLogSpeed(t *testing.T) {
	buf := encodeSamples(t, 100*time.Millisecond, 0, 1)
	start := time.Now()
	if _, err := ReplayLog(context.Background(), buf, &recorder{}, ReplayOptions{Speed: 10}); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if el := time.Since(start); el < 5*time.Millisecond {
		t.Fatalf("expected playback delay, took %v", el)
	}
}

func TestReplayLogSkipsBlankLinesAndOtherRuns(t *testing.T) {
	other := testSample(9)
	other.RunID = "run-2"
	line, _ := json.Marshal(other)
	in := encodeSamples(t, 0, 1).String() + "\n\n" + string(line) + "\n" + encodeSamples(t, 0, 2).String()

	r := &recorder{}
	n, err := ReplayLog(context.Background(), strings.NewReader(in), r, ReplayOptions{RunID: "run-1"})
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if n != 2 || r.samples[0].Tick != 1 || r.samples[1].Tick != 2 {
		t.Fatalf("unexpected samples %+v", r.samples)
	}
}

func TestReplayLogInvalid(t *testing.T) {
	n, err := ReplayLog(context.Background(), strings.NewReader("{\"tick\":1}\nnot json"), &recorder{}, ReplayOptions{})
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected error to name line 2, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 sample before error, got %d", n)
	}
}

func TestReplayLogCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &recorder{}
	buf := encodeSamples(t, time.Hour, 1, 2)
	time.AfterFunc(20*time.Millisecond, cancel)
	n, err := ReplayLog(ctx, buf, r, ReplayOptions{Speed: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected first sample before cancel, got %d", n)
	}
}

func TestReplayLogWriterError(t *testing.T) {
	boom := errors.New("boom")
	n, err := ReplayLog(context.Background(), encodeSamples(t, 0, 1), &recorder{err: boom}, ReplayOptions{})
	if !errors.Is(err, boom) || n != 0 {
		t.Fatalf("expected writer error, got %d %v", n, err)
	}
}

func TestReplayLogFileMissing(t *testing.T) {
	if _, err := ReplayLogFile(context.Background(), "does-not-exist.jsonl", &recorder{}, ReplayOptions{}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
