package telemetry

import (
	"os"
	"time"

	"rlsim-bridge/internal/wire"
)

// Sample is one completed exchange.
type Sample struct {
	RunID     string     `json:"run_id"` // TAG
	Tick      int        `json:"tick"`   // FIELD
	Force     wire.Force `json:"force"`  // FIELD
	Pose      wire.Pose  `json:"pose"`   // FIELD, heading in radians
	Timestamp time.Time  `json:"ts"`     // TIME INDEX
}

// SampleWriter receives every exchange of a session.
type SampleWriter interface {
	WriteSample(Sample) error
}

// SampleTableName is the GreptimeDB table for samples. It defaults to
// "telemetry_samples" and can be overridden with GREPTIMEDB_TABLE.
var SampleTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "telemetry_samples"
}()

func (Sample) TableName() string {
	return SampleTableName
}
