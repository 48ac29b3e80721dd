// Package engine defines the simulation engine the run supervisor drives.
// The physics itself lives behind these interfaces.
package engine

import (
	"context"
	"errors"

	"rlsim-bridge/internal/wire"
)

// ErrModelBusy reports that the model file is still held by a previous run.
// Loaders treat it as transient.
var ErrModelBusy = errors.New("model file is held by another process")

// ProgressFunc is invoked by Model.Run at the engine's own progress
// granularity with the current simulation time. Returning true asks the
// engine to abort the run.
type ProgressFunc func(simTime float64) (cancel bool)

// Outcome is how a run ended.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeCompleted
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Engine loads models.
type Engine interface {
	Load(ctx context.Context, path string) (Model, error)
}

// Model is one loaded simulation model. A Model is used by a single run and
// released with Close.
type Model interface {
	ApplyInitialPose(p wire.Pose) error
	ApplyEnvironment(env wire.Environment) error
	SetStageDuration(seconds float64) error
	Run(progress ProgressFunc) (Outcome, error)
	// Pause halts time-stepping; it is called from inside the progress callback.
	Pause()
	Close() error
}
