// Package telemetry implements the per-tick force/pose exchange between the
// RL side and a running simulation.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"rlsim-bridge/internal/wire"
)

var (
	// ErrTelemetry is matched by every session failure.
	ErrTelemetry = errors.New("telemetry failure")
	// ErrExchangeInFlight is returned when Exchange is called concurrently.
	ErrExchangeInFlight = errors.New("telemetry exchange already in flight")
)

// Failure is a fatal telemetry error. Once returned the session is broken.
type Failure struct {
	Op  string // accept, write, read or decode
	Err error
}

func (f *Failure) Error() string { return fmt.Sprintf("telemetry %s: %v", f.Op, f.Err) }

func (f *Failure) Unwrap() error { return f.Err }

// Is lets errors.Is(err, ErrTelemetry) match.
func (f *Failure) Is(target error) bool { return target == ErrTelemetry }

// SessionOptions tunes a session.
type SessionOptions struct {
	// ReadTimeout bounds one exchange from the moment it starts. Zero blocks forever.
	ReadTimeout time.Duration
	// WriteTimeout bounds sending a force frame. Zero blocks forever.
	WriteTimeout time.Duration
	RunID        string
	Writer       SampleWriter
	Logger       *slog.Logger
}

// Session is one established telemetry connection.
type Session struct {
	conn net.Conn
	fr   *wire.FrameReader
	opts SessionOptions
	log  *slog.Logger

	inFlight atomic.Bool

	mu     sync.Mutex
	broken error
	tick   int
}

// NewSession wraps conn. The session owns conn from here on.
func NewSession(conn net.Conn, opts SessionOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		conn: conn,
		fr:   wire.NewFrameReader(conn),
		opts: opts,
		log:  log.With("peer", conn.RemoteAddr().String()),
	}
}

// RemoteAddr returns the simulator's address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Ticks returns the number of completed exchanges.
func (s *Session) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Exchange sends f and blocks for exactly one pose reply.
func (s *Session) Exchange(ctx context.Context, f wire.Force) (wire.Pose, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return wire.Pose{}, ErrExchangeInFlight
	}
	defer s.inFlight.Store(false)

	s.mu.Lock()
	broken := s.broken
	s.mu.Unlock()
	if broken != nil {
		return wire.Pose{}, broken
	}

	pose, fail := s.exchange(ctx, f)
	if fail != nil {
		if cerr := ctx.Err(); cerr != nil {
			fail.Err = cerr
		}
		s.mu.Lock()
		s.broken = fail
		s.mu.Unlock()
		s.log.Error("telemetry session broken", "run_id", s.opts.RunID, "err", fail)
		return wire.Pose{}, fail
	}

	s.mu.Lock()
	s.tick++
	tick := s.tick
	s.mu.Unlock()

	if s.opts.Writer != nil {
		sample := Sample{RunID: s.opts.RunID, Tick: tick, Force: f, Pose: pose, Timestamp: time.Now().UTC()}
		if werr := s.opts.Writer.WriteSample(sample); werr != nil {
			s.log.Warn("sample write failed", "tick", tick, "err", werr)
		}
	}
	return pose, nil
}

func (s *Session) exchange(ctx context.Context, f wire.Force) (wire.Pose, *Failure) {
	// Deadlines are armed before the context hook so a cancellation cannot
	// be overwritten by them.
	if err := s.conn.SetWriteDeadline(deadline(s.opts.WriteTimeout)); err != nil {
		return wire.Pose{}, &Failure{Op: "write", Err: err}
	}
	if err := s.conn.SetReadDeadline(deadline(s.opts.ReadTimeout)); err != nil {
		return wire.Pose{}, &Failure{Op: "read", Err: err}
	}
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := s.conn.Write(wire.EncodeForce(f)); err != nil {
		return wire.Pose{}, &Failure{Op: "write", Err: err}
	}
	frame, err := s.fr.ReadFrame()
	if err != nil {
		return wire.Pose{}, &Failure{Op: "read", Err: err}
	}
	pose, err := wire.DecodePose(frame)
	if err != nil {
		return wire.Pose{}, &Failure{Op: "decode", Err: err}
	}
	return pose, nil
}

// Close closes the connection. Later exchanges fail.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.broken == nil {
		s.broken = &Failure{Op: "write", Err: net.ErrClosed}
	}
	s.mu.Unlock()
	return s.conn.Close()
}

func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
