package record

import (
	"errors"
	"io"

	"rlsim-bridge/internal/telemetry"
)

// MultiWriter fans samples and episode summaries out to multiple writers.
type MultiWriter struct {
	samples  []SampleWriter
	episodes []EpisodeWriter
}

// NewMultiWriter creates a MultiWriter. Every sample writer that also
// implements EpisodeWriter receives episodes too.
func NewMultiWriter(ws ...SampleWriter) *MultiWriter {
	mw := &MultiWriter{samples: ws}
	for _, w := range ws {
		if ew, ok := w.(EpisodeWriter); ok {
			mw.episodes = append(mw.episodes, ew)
		}
	}
	return mw
}

// WriteSample sends a sample to all writers.
func (mw *MultiWriter) WriteSample(s telemetry.Sample) error {
	for _, w := range mw.samples {
		if err := w.WriteSample(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteSamples sends multiple samples to all writers, using batch if supported.
func (mw *MultiWriter) WriteSamples(rows []telemetry.Sample) error {
	for _, w := range mw.samples {
		if bw, ok := w.(batchSampleWriter); ok {
			if err := bw.WriteSamples(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteSample(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteEpisode sends an episode summary to all episode writers.
func (mw *MultiWriter) WriteEpisode(e EpisodeRow) error {
	for _, w := range mw.episodes {
		if err := w.WriteEpisode(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer that is an io.Closer.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.samples {
		if c, ok := w.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
