// Package supervisor runs at most one simulation at a time on an engine.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rlsim-bridge/internal/engine"
	"rlsim-bridge/internal/logging"
	"rlsim-bridge/internal/wire"
)

var (
	// ErrLoad is matched by every model acquisition failure.
	ErrLoad = errors.New("model load failed")
	// ErrRunActive is returned by StartRun while the previous run has not been awaited.
	ErrRunActive = errors.New("a simulation run is still active")
)

// LoadError reports a model that could not be acquired within the attempt budget.
type LoadError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrLoad) match.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// Options configures model acquisition.
type Options struct {
	ModelPath    string
	LoadAttempts int
	LoadBackoff  time.Duration
}

// Supervisor owns the engine and the single live RunHandle.
type Supervisor struct {
	engine engine.Engine
	opts   Options

	mu       sync.Mutex
	current  *RunHandle
	starting bool
}

// New creates a supervisor. LoadAttempts defaults to 3 and LoadBackoff to 1s.
func New(e engine.Engine, opts Options) *Supervisor {
	if opts.LoadAttempts <= 0 {
		opts.LoadAttempts = 3
	}
	if opts.LoadBackoff < 0 {
		opts.LoadBackoff = 0
	} else if opts.LoadBackoff == 0 {
		opts.LoadBackoff = time.Second
	}
	return &Supervisor{engine: e, opts: opts}
}

// StartRun loads the model, applies p and launches the run in the
// background. It returns as soon as the run is executing.
func (s *Supervisor) StartRun(ctx context.Context, p wire.SimulationParameters) (*RunHandle, error) {
	s.mu.Lock()
	if s.current != nil || s.starting {
		s.mu.Unlock()
		return nil, ErrRunActive
	}
	s.starting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	log := logging.FromContext(ctx)
	model, err := s.load(ctx, log)
	if err != nil {
		return nil, err
	}
	if err := apply(model, p); err != nil {
		model.Close()
		return nil, fmt.Errorf("apply parameters: %w", err)
	}

	h := newRunHandle(p, model, log)

	s.mu.Lock()
	s.current = h
	s.mu.Unlock()

	h.log.Info("run started",
		"x", p.Pose.X, "y", p.Pose.Y, "heading_deg", p.Pose.Heading,
		"wave_hs", p.Environment.WaveHs, "duration", p.Duration)
	go h.execute()
	return h, nil
}

func (s *Supervisor) load(ctx context.Context, log *slog.Logger) (engine.Model, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.LoadAttempts; attempt++ {
		m, err := s.engine.Load(ctx, s.opts.ModelPath)
		if err == nil {
			return m, nil
		}
		lastErr = err
		log.Warn("model load failed", "path", s.opts.ModelPath, "attempt", attempt, "err", err)
		if attempt == s.opts.LoadAttempts {
			break
		}
		select {
		case <-time.After(s.opts.LoadBackoff):
		case <-ctx.Done():
			return nil, &LoadError{Path: s.opts.ModelPath, Attempts: attempt, Err: ctx.Err()}
		}
	}
	return nil, &LoadError{Path: s.opts.ModelPath, Attempts: s.opts.LoadAttempts, Err: lastErr}
}

func apply(m engine.Model, p wire.SimulationParameters) error {
	if err := m.ApplyInitialPose(p.Pose); err != nil {
		return err
	}
	if err := m.ApplyEnvironment(p.Environment); err != nil {
		return err
	}
	return m.SetStageDuration(p.Duration)
}

// RequestCancel sets the handle's cancel flag and returns immediately.
func (s *Supervisor) RequestCancel(h *RunHandle) {
	if h == nil {
		return
	}
	h.requestCancel()
}

// AwaitCompletion blocks until h's run has exited, then releases its model.
// It must be called before the next StartRun. A nil handle returns
// OutcomeUnknown immediately.
func (s *Supervisor) AwaitCompletion(h *RunHandle) (engine.Outcome, error) {
	if h == nil {
		return engine.OutcomeUnknown, nil
	}
	<-h.done
	h.release()
	s.mu.Lock()
	if s.current == h {
		s.current = nil
	}
	s.mu.Unlock()
	return h.outcome, h.err
}

// Current returns the live handle, if any.
func (s *Supervisor) Current() *RunHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Shutdown cancels the current run and waits for it, bounded by ctx.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	h := s.Current()
	if h == nil {
		return nil
	}
	h.requestCancel()
	select {
	case <-h.done:
		s.AwaitCompletion(h)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("run %s did not stop: %w", h.id, ctx.Err())
	}
}
