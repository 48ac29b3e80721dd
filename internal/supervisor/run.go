package supervisor

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rlsim-bridge/internal/engine"
	"rlsim-bridge/internal/wire"
)

// State is the run's cancel-token state.
type State int32

const (
	StateRunning State = iota
	StateCancelRequested
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCancelRequested:
		return "cancel_requested"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// RunHandle is one in-flight simulation. Its cancel token is private to the
// run and only reaches the engine through the progress callback.
type RunHandle struct {
	id        string
	params    wire.SimulationParameters
	startedAt time.Time
	model     engine.Model

	state   atomic.Int32
	simTime atomic.Uint64 // float64 bits of the last progress time

	done    chan struct{}
	outcome engine.Outcome
	err     error

	releaseOnce sync.Once
	log         *slog.Logger
}

func newRunHandle(p wire.SimulationParameters, m engine.Model, log *slog.Logger) *RunHandle {
	id := uuid.New().String()
	return &RunHandle{
		id:        id,
		params:    p,
		startedAt: time.Now().UTC(),
		model:     m,
		done:      make(chan struct{}),
		log:       log.With("run_id", id),
	}
}

// ID returns the run identifier.
func (h *RunHandle) ID() string { return h.id }

// Params returns the parameters the run was started with.
func (h *RunHandle) Params() wire.SimulationParameters { return h.params }

// StartedAt returns when the run was launched.
func (h *RunHandle) StartedAt() time.Time { return h.startedAt }

// State returns the current token state.
func (h *RunHandle) State() State { return State(h.state.Load()) }

// SimTime returns the simulation time last reported by the engine.
func (h *RunHandle) SimTime() float64 { return math.Float64frombits(h.simTime.Load()) }

// Done is closed when the run's goroutine has exited.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Outcome returns how the run ended, or OutcomeUnknown while it is running.
func (h *RunHandle) Outcome() engine.Outcome {
	select {
	case <-h.done:
		return h.outcome
	default:
		return engine.OutcomeUnknown
	}
}

// Err returns the engine error of a finished run.
func (h *RunHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *RunHandle) requestCancel() {
	if h.state.CompareAndSwap(int32(StateRunning), int32(StateCancelRequested)) {
		h.log.Info("run cancel requested")
	}
}

// progress is the callback handed to the engine.
func (h *RunHandle) progress(simTime float64) bool {
	h.simTime.Store(math.Float64bits(simTime))
	if h.State() == StateCancelRequested {
		h.model.Pause()
		return true
	}
	return false
}

func (h *RunHandle) execute() {
	log := h.log
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			h.outcome, h.err = engine.OutcomeFailed, fmt.Errorf("engine panic: %v", r)
			h.state.Store(int32(StateTerminated))
			log.Error("run failed", "err", h.err)
		}
	}()

	outcome, err := h.model.Run(h.progress)
	if err != nil && outcome == engine.OutcomeUnknown {
		outcome = engine.OutcomeFailed
	}
	h.outcome, h.err = outcome, err
	h.state.Store(int32(StateTerminated))
	if err != nil {
		log.Error("run terminated", "outcome", outcome, "sim_time", h.SimTime(), "err", err)
		return
	}
	log.Info("run terminated", "outcome", outcome, "sim_time", h.SimTime())
}

func (h *RunHandle) release() {
	h.releaseOnce.Do(func() {
		if err := h.model.Close(); err != nil {
			h.log.Warn("model release failed", "err", err)
		}
	})
}
