package record

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"rlsim-bridge/internal/telemetry"
)

// FileWriter writes samples and episode summaries to JSONL files.
type FileWriter struct {
	mu         sync.Mutex
	sampleFile *os.File
	epFile     *os.File
	sampleEnc  *json.Encoder
	epEnc      *json.Encoder
}

// NewFileWriter creates a FileWriter. episodePath may be empty to skip the
// episode log.
func NewFileWriter(samplePath, episodePath string) (*FileWriter, error) {
	sf, err := os.Create(samplePath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{sampleFile: sf, sampleEnc: json.NewEncoder(sf)}
	if episodePath != "" {
		ef, err := os.Create(episodePath)
		if err != nil {
			sf.Close()
			return nil, err
		}
		fw.epFile = ef
		fw.epEnc = json.NewEncoder(ef)
	}
	return fw, nil
}

// WriteSample logs a single sample.
func (f *FileWriter) WriteSample(s telemetry.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sampleEnc.Encode(s)
}

// WriteSamples logs multiple samples.
func (f *FileWriter) WriteSamples(rows []telemetry.Sample) error {
	for _, r := range rows {
		if err := f.WriteSample(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEpisode logs an episode summary, if enabled.
func (f *FileWriter) WriteEpisode(e EpisodeRow) error {
	if f.epEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epEnc.Encode(e)
}

// Close closes the underlying files.
func (f *FileWriter) Close() error {
	var errs []error
	if f.sampleFile != nil {
		errs = append(errs, f.sampleFile.Close())
	}
	if f.epFile != nil {
		errs = append(errs, f.epFile.Close())
	}
	return errors.Join(errs...)
}
