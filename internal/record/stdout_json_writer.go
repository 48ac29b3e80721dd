package record

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"rlsim-bridge/internal/telemetry"
)

// JSONStdoutWriter prints samples and episodes as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) emit(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteSample outputs a sample in JSON format.
func (w *JSONStdoutWriter) WriteSample(s telemetry.Sample) error {
	return w.emit(s)
}

// WriteSamples outputs multiple samples in JSON format.
func (w *JSONStdoutWriter) WriteSamples(rows []telemetry.Sample) error {
	for _, r := range rows {
		if err := w.WriteSample(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEpisode outputs an episode summary in JSON format.
func (w *JSONStdoutWriter) WriteEpisode(e EpisodeRow) error {
	return w.emit(e)
}
