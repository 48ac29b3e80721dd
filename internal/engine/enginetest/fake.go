// Package enginetest provides a scripted engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rlsim-bridge/internal/engine"
	"rlsim-bridge/internal/wire"
)

// Engine is a fake engine that records lifecycle events in order.
type Engine struct {
	// FailLoads makes the first N Load calls fail with engine.ErrModelBusy.
	FailLoads int
	// Steps bounds a run; 0 runs until cancelled.
	Steps int
	// StepInterval is the wall time between progress callbacks (default 1ms).
	StepInterval time.Duration
	// Hold, when non-nil, keeps Run from returning until it is closed.
	Hold chan struct{}
	// RunErr is returned by Run after the loop ends.
	RunErr error
	// OnRun is invoked at the start of every Run.
	OnRun func(m *Model)

	mu     sync.Mutex
	loads  int
	events []string
	models []*Model
}

// Load implements engine.Engine.
func (e *Engine) Load(ctx context.Context, path string) (engine.Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads++
	if e.loads <= e.FailLoads {
		e.events = append(e.events, "load-failed")
		return nil, fmt.Errorf("open %s: %w", path, engine.ErrModelBusy)
	}
	m := &Model{e: e, n: len(e.models) + 1}
	e.models = append(e.models, m)
	e.events = append(e.events, fmt.Sprintf("load#%d", m.n))
	return m, nil
}

// Loads returns how many Load calls were made.
func (e *Engine) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}

// Events returns a copy of the recorded events.
func (e *Engine) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	copy(out, e.events)
	return out
}

// Models returns the models loaded so far.
func (e *Engine) Models() []*Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Model, len(e.models))
	copy(out, e.models)
	return out
}

func (e *Engine) record(ev string) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

// Model is a fake loaded model.
type Model struct {
	e *Engine
	n int

	mu       sync.Mutex
	pose     wire.Pose
	env      wire.Environment
	duration float64

	paused atomic.Bool
	closed atomic.Bool
}

func (m *Model) ApplyInitialPose(p wire.Pose) error {
	m.mu.Lock()
	m.pose = p
	m.mu.Unlock()
	return nil
}

func (m *Model) ApplyEnvironment(env wire.Environment) error {
	m.mu.Lock()
	m.env = env
	m.mu.Unlock()
	return nil
}

func (m *Model) SetStageDuration(seconds float64) error {
	m.mu.Lock()
	m.duration = seconds
	m.mu.Unlock()
	return nil
}

// Run calls progress every StepInterval until cancelled or Steps is reached.
func (m *Model) Run(progress engine.ProgressFunc) (engine.Outcome, error) {
	m.e.record(fmt.Sprintf("run-start#%d", m.n))
	if m.e.OnRun != nil {
		m.e.OnRun(m)
	}
	interval := m.e.StepInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	outcome := engine.OutcomeCompleted
	for i := 0; m.e.Steps == 0 || i < m.e.Steps; i++ {
		if progress(float64(i) * interval.Seconds()) {
			outcome = engine.OutcomeCancelled
			break
		}
		time.Sleep(interval)
	}
	if m.e.Hold != nil {
		<-m.e.Hold
	}
	m.e.record(fmt.Sprintf("run-exit#%d", m.n))
	if m.e.RunErr != nil {
		return engine.OutcomeFailed, m.e.RunErr
	}
	return outcome, nil
}

func (m *Model) Pause() { m.paused.Store(true) }

func (m *Model) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.e.record(fmt.Sprintf("close#%d", m.n))
	}
	return nil
}

// Paused reports whether the supervisor paused the model.
func (m *Model) Paused() bool { return m.paused.Load() }

// Closed reports whether the model was released.
func (m *Model) Closed() bool { return m.closed.Load() }

// Pose returns the applied initial pose.
func (m *Model) Pose() wire.Pose {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pose
}

// Environment returns the applied environment.
func (m *Model) Environment() wire.Environment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.env
}

// Duration returns the applied stage duration.
func (m *Model) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}
