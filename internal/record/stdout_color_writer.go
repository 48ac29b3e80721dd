package record

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"rlsim-bridge/internal/telemetry"
	"rlsim-bridge/internal/wire"
)

// ColorStdoutWriter prints human-friendly, colorized samples to STDOUT.
type ColorStdoutWriter struct {
	mu        sync.Mutex
	out       io.Writer
	runColors map[string]*color.Color
	colorIdx  int
}

var runPalette = []color.Attribute{color.FgCyan, color.FgMagenta, color.FgYellow, color.FgBlue, color.FgGreen}

var (
	tsColor    = color.New(color.FgHiBlack)
	forceColor = color.New(color.FgRed)
	poseColor  = color.New(color.FgGreen)
	titleColor = color.New(color.Bold)
)

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter() *ColorStdoutWriter {
	return &ColorStdoutWriter{out: os.Stdout, runColors: make(map[string]*color.Color)}
}

func (w *ColorStdoutWriter) runColor(id string) *color.Color {
	if c, ok := w.runColors[id]; ok {
		return c
	}
	c := color.New(runPalette[w.colorIdx%len(runPalette)])
	w.runColors[id] = c
	w.colorIdx++
	return c
}

// WriteSample prints one sample line.
func (w *ColorStdoutWriter) WriteSample(s telemetry.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s %s tick=%d %s %s\n",
		tsColor.Sprint(s.Timestamp.Format(time.RFC3339)),
		w.runColor(s.RunID).Sprintf("run=%s", shortID(s.RunID)),
		s.Tick,
		forceColor.Sprintf("force=(%.1f,%.1f,%.1f)", s.Force.X, s.Force.Y, s.Force.N),
		poseColor.Sprintf("pose=(%.3f,%.3f,%.2f°)", s.Pose.X, s.Pose.Y, wire.RadToDeg(s.Pose.Heading)),
	)
	return err
}

// WriteEpisode prints an episode summary block.
func (w *ColorStdoutWriter) WriteEpisode(e EpisodeRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s %s\n  steps=%d distance=%.2fm elapsed=%.1fs final=(%.3f,%.3f,%.2f°)\n",
		titleColor.Sprintf("episode %s", e.Name),
		w.runColor(e.RunID).Sprintf("run=%s", shortID(e.RunID)),
		e.Steps, e.Distance, e.ElapsedSeconds, e.FinalX, e.FinalY, wire.RadToDeg(e.FinalHeading),
	)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
