// Package kinematic is a small 3-DOF vessel simulator that speaks the
// telemetry protocol, used in place of a full hydrodynamics engine.
package kinematic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"rlsim-bridge/internal/engine"
	"rlsim-bridge/internal/wire"
)

// Engine loads kinematic vessel models.
type Engine struct {
	log           *slog.Logger
	telemetryAddr string
}

// New returns an engine logging to log.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log}
}

// WithTelemetryAddr makes every loaded model dial addr instead of the
// telemetry_addr in its model file. An empty addr keeps the file's value.
func (e *Engine) WithTelemetryAddr(addr string) *Engine {
	e.telemetryAddr = addr
	return e
}

// Load reads the model at path and takes its lock file. It fails with
// engine.ErrModelBusy while another model holds the lock.
func (e *Engine) Load(ctx context.Context, path string) (engine.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec, err := LoadSpec(path)
	if err != nil {
		return nil, err
	}
	if e.telemetryAddr != "" {
		spec.TelemetryAddr = e.telemetryAddr
	}
	lockPath := path + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", lockPath, engine.ErrModelBusy)
		}
		return nil, fmt.Errorf("lock model: %w", err)
	}
	fmt.Fprintf(lock, "%d\n", os.Getpid())
	lock.Close()
	return &Model{spec: spec, lockPath: lockPath, log: e.log.With("model", spec.Name)}, nil
}

// Model is one loaded vessel.
type Model struct {
	spec     *Spec
	lockPath string
	log      *slog.Logger

	mu       sync.Mutex
	initial  state
	env      wire.Environment
	duration float64

	paused    atomic.Bool
	closeOnce sync.Once
}

// ApplyInitialPose sets the start pose; heading is degrees. The pose names
// the reference point and is shifted to the centre of gravity.
func (m *Model) ApplyInitialPose(p wire.Pose) error {
	m.mu.Lock()
	m.initial = cogFromReference(p, m.spec.ReferenceOffset)
	m.mu.Unlock()
	return nil
}

func (m *Model) ApplyEnvironment(env wire.Environment) error {
	if env.WaveHs < 0 || env.WaveTz < 0 || env.CurrentSpeed < 0 || env.WindSpeed < 0 {
		return fmt.Errorf("environment magnitudes must not be negative: %+v", env)
	}
	m.mu.Lock()
	m.env = env
	m.mu.Unlock()
	return nil
}

// SetStageDuration sets the simulated length of the run. Zero or less runs
// until cancelled.
func (m *Model) SetStageDuration(seconds float64) error {
	m.mu.Lock()
	m.duration = seconds
	m.mu.Unlock()
	return nil
}

// Pause marks the model paused. Run returns on the next progress report.
func (m *Model) Pause() { m.paused.Store(true) }

// Paused reports whether Pause was called.
func (m *Model) Paused() bool { return m.paused.Load() }

// Close drops the lock file.
func (m *Model) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if rerr := os.Remove(m.lockPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = fmt.Errorf("unlock model: %w", rerr)
		}
	})
	return err
}

// Run dials the telemetry listener once and steps in lockstep with it: each
// force frame is answered with the current pose and then integrated. When
// the peer is gone the model keeps stepping with zero force.
func (m *Model) Run(progress engine.ProgressFunc) (engine.Outcome, error) {
	m.mu.Lock()
	st, env, duration := m.initial, m.env, m.duration
	m.mu.Unlock()
	dt := m.spec.TimeStep
	simTime := 0.0

	var frames <-chan []byte
	var readErr <-chan error
	conn, err := net.DialTimeout("tcp", m.spec.TelemetryAddr, 5*time.Second)
	if err != nil {
		m.log.Warn("telemetry dial failed, running without peer", "addr", m.spec.TelemetryAddr, "err", err)
	} else {
		defer conn.Close()
		done := make(chan struct{})
		defer close(done)
		frames, readErr = readFrames(conn, done)
		m.log.Info("telemetry connected", "addr", m.spec.TelemetryAddr)
	}

	ticker := time.NewTicker(m.spec.PollInterval)
	defer ticker.Stop()

	for duration <= 0 || simTime < duration {
		force := wire.Force{}
		if frames != nil {
			select {
			case frame := <-frames:
				f, err := wire.DecodeForce(frame)
				if err != nil {
					m.log.Warn("malformed force frame, applying zero force", "frame", string(frame), "err", err)
				} else {
					force = f
				}
				if _, err := conn.Write(wire.EncodePose(st.reference(m.spec.ReferenceOffset))); err != nil {
					m.log.Warn("telemetry lost", "err", err)
					frames = nil
				}
			case err := <-readErr:
				m.log.Warn("telemetry lost", "err", err)
				frames = nil
				continue
			case <-ticker.C:
				if progress(simTime) {
					return engine.OutcomeCancelled, nil
				}
				continue
			}
		} else if m.spec.RealtimeFactor > 0 {
			time.Sleep(time.Duration(dt / m.spec.RealtimeFactor * float64(time.Second)))
		}

		st = st.step(m.spec, env, force, dt)
		simTime += dt
		if progress(simTime) {
			return engine.OutcomeCancelled, nil
		}
	}
	return engine.OutcomeCompleted, nil
}

// readFrames pumps frames from conn until it fails or done is closed.
func readFrames(conn net.Conn, done <-chan struct{}) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		fr := wire.NewFrameReader(conn)
		for {
			frame, err := fr.ReadFrame()
			if err != nil {
				errc <- err
				return
			}
			select {
			case frames <- frame:
			case <-done:
				return
			}
		}
	}()
	return frames, errc
}
