// Package control serves the long-lived control channel that starts and
// stops simulation runs.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"rlsim-bridge/internal/logging"
	"rlsim-bridge/internal/supervisor"
	"rlsim-bridge/internal/wire"
)

// Server accepts one control client at a time and dispatches its commands
// in arrival order.
type Server struct {
	addr string
	sup  *supervisor.Supervisor
	log  *slog.Logger

	state atomic.Int32
	slot  ConnectionSlot

	mu   sync.Mutex
	peer string
}

// NewServer creates a control server for addr driving sup.
func NewServer(addr string, sup *supervisor.Supervisor, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{addr: addr, sup: sup, log: log}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen control %s: %w", s.addr, err)
	}
	s.log.Info("control server listening", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or ln fails.
// Cancelling ctx closes the listener and the current connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		s.slot.Close()
	})
	defer stop()

	for {
		s.setState(StateListening)
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept control: %w", err)
		}
		s.slot.Replace(conn)
		s.setPeer(conn.RemoteAddr().String())
		s.setState(StateConnected)

		s.handleConnection(ctx, conn)

		s.setPeer("")
		s.setState(StateDisconnected)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	log := s.log.With("peer", conn.RemoteAddr().String())
	log.Info("control client connected")
	ctx = logging.NewContext(ctx, log)
	fr := wire.NewFrameReader(conn)

	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			s.slot.Release(conn)
			conn.Close()
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
				log.Info("control connection lost")
			default:
				log.Warn("control read failed", "err", err)
			}
			return
		}

		cmd, err := wire.DecodeControl(frame)
		if err != nil {
			log.Warn("malformed control frame dropped", "frame", string(frame), "err", err)
			continue
		}
		log.Debug("control command", "cmd", cmd.Kind)

		var ack string
		switch cmd.Kind {
		case wire.StartRun:
			ack = s.start(ctx, cmd.Params)
		case wire.StopRun:
			s.sup.RequestCancel(s.sup.Current())
			ack = wire.AckStop
		case wire.CloseConnection:
			s.sup.RequestCancel(s.sup.Current())
			s.slot.Close()
			log.Info("control connection closed by client")
			return
		}

		if _, err := conn.Write([]byte(ack)); err != nil {
			log.Warn("ack write failed", "cmd", cmd.Kind, "err", err)
			s.slot.Release(conn)
			conn.Close()
			return
		}
	}
}

// start serialises behind the previous run before loading the next one.
func (s *Server) start(ctx context.Context, p wire.SimulationParameters) string {
	log := logging.FromContext(ctx)
	if prev := s.sup.Current(); prev != nil {
		log.Info("waiting for previous run", "run_id", prev.ID(), "state", prev.State())
		s.sup.AwaitCompletion(prev)
	}
	if err := ctx.Err(); err != nil {
		log.Warn("start abandoned, server stopping", "err", err)
		return fmt.Sprintf("%s: %v", wire.AckStartFailed, err)
	}
	h, err := s.sup.StartRun(ctx, p)
	if err != nil {
		log.Error("start run failed", "err", err)
		return fmt.Sprintf("%s: %v", wire.AckStartFailed, err)
	}
	log.Info("start run", "run_id", h.ID())
	return wire.AckStart
}

// State returns the current connection state.
func (s *Server) State() State { return State(s.state.Load()) }

func (s *Server) setState(st State) { s.state.Store(int32(st)) }

func (s *Server) setPeer(p string) {
	s.mu.Lock()
	s.peer = p
	s.mu.Unlock()
}

// Status returns a snapshot for the admin API.
func (s *Server) Status() Status {
	s.mu.Lock()
	st := Status{State: s.State().String(), Peer: s.peer}
	s.mu.Unlock()
	if h := s.sup.Current(); h != nil {
		st.Run = &RunStatus{
			ID:        h.ID(),
			State:     h.State().String(),
			SimTime:   h.SimTime(),
			StartedAt: h.StartedAt(),
			Params:    h.Params(),
		}
	}
	return st
}

// StopRun cancels the current run, if any, without waiting for it.
func (s *Server) StopRun() (string, bool) {
	h := s.sup.Current()
	if h == nil {
		return "", false
	}
	s.sup.RequestCancel(h)
	return h.ID(), true
}
