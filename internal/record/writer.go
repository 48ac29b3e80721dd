// Package record persists and displays telemetry samples and episode
// summaries.
package record

import (
	"time"

	"rlsim-bridge/internal/telemetry"
)

// SampleWriter handles telemetry samples.
type SampleWriter = telemetry.SampleWriter

// Optional: writers may support batch mode for samples.
type batchSampleWriter interface {
	WriteSamples([]telemetry.Sample) error
}

// EpisodeRow summarises one finished episode.
type EpisodeRow struct {
	Name           string    `json:"name"`   // TAG
	RunID          string    `json:"run_id"` // TAG
	Steps          int       `json:"steps"`
	FinalX         float64   `json:"final_x"`
	FinalY         float64   `json:"final_y"`
	FinalHeading   float64   `json:"final_heading"` // rad
	Distance       float64   `json:"distance"`      // m
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Timestamp      time.Time `json:"ts"` // TIME INDEX
}

// EpisodeWriter handles episode summaries.
type EpisodeWriter interface {
	WriteEpisode(EpisodeRow) error
}
