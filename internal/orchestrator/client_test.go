package orchestrator

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"rlsim-bridge/internal/telemetry"
	"rlsim-bridge/internal/wire"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// fakeController acks control commands and records them in order.
type fakeController struct {
	t      *testing.T
	ln     net.Listener
	handle func(wire.ControlFrame) string

	mu   sync.Mutex
	cmds []wire.CommandKind
}

func newFakeController(t *testing.T, handle func(wire.ControlFrame) string) *fakeController {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	fc := &fakeController{t: t, ln: ln, handle: handle}
	t.Cleanup(func() { ln.Close() })
	go fc.serve()
	return fc
}

func (fc *fakeController) serve() {
	conn, err := fc.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	fr := wire.NewFrameReader(conn)
	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			return
		}
		cmd, err := wire.DecodeControl(frame)
		if err != nil {
			fc.t.Errorf("client sent malformed frame %q: %v", frame, err)
			return
		}
		fc.mu.Lock()
		fc.cmds = append(fc.cmds, cmd.Kind)
		fc.mu.Unlock()
		if cmd.Kind == wire.CloseConnection {
			return
		}
		conn.Write([]byte(fc.handle(cmd)))
	}
}

func (fc *fakeController) commands() []wire.CommandKind {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]wire.CommandKind(nil), fc.cmds...)
}

// simulate dials addr and answers every force frame with pose, moving x by
// the force's X component.
func simulate(t *testing.T, addr string, start wire.Pose) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		defer conn.Close()
		fr := wire.NewFrameReader(conn)
		pose := start
		for {
			frame, err := fr.ReadFrame()
			if err != nil {
				return
			}
			f, err := wire.DecodeForce(frame)
			if err != nil {
				t.Errorf("simulator got malformed force %q", frame)
				return
			}
			conn.Write(wire.EncodePose(pose))
			pose.X += f.X
		}
	}()
	return nil
}

func TestResetSequencesHandshake(t *testing.T) {
	telemetryAddr := freeAddr(t)
	fc := newFakeController(t, func(cmd wire.ControlFrame) string {
		switch cmd.Kind {
		case wire.StartRun:
			// The listener must already be up when the start arrives.
			start := wire.Pose{X: cmd.Params.Pose.X, Y: cmd.Params.Pose.Y, Heading: wire.DegToRad(cmd.Params.Pose.Heading)}
			if err := simulate(t, telemetryAddr, start); err != nil {
				t.Errorf("telemetry listener not ready at start: %v", err)
			}
			return wire.AckStart
		default:
			return wire.AckStop
		}
	})

	ctx := context.Background()
	c, err := Dial(ctx, Options{ControlAddr: fc.ln.Addr().String(), TelemetryAddr: telemetryAddr, AcceptTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	pose, err := c.Reset(ctx, wire.SimulationParameters{Pose: wire.Pose{X: 5, Y: 6, Heading: 180}, Duration: 100})
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if pose.X != 5 || pose.Y != 6 || math.Abs(pose.Heading-math.Pi) > 1e-9 {
		t.Fatalf("unexpected initial pose %+v", pose)
	}
	if c.RunID() == "" {
		t.Fatalf("expected a run id after reset")
	}
	p, err := c.Step(ctx, wire.Force{X: 2})
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if p.X != 5 {
		t.Fatalf("expected pose before the force is applied, got %+v", p)
	}
	if p, _ := c.Step(ctx, wire.Force{}); p.X != 7 {
		t.Fatalf("expected x=7 after force, got %+v", p)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	want := []wire.CommandKind{wire.StopRun, wire.StartRun, wire.StopRun, wire.CloseConnection}
	got := fc.commands()
	if len(got) != len(want) {
		t.Fatalf("expected commands %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected commands %v, got %v", want, got)
		}
	}
}

func TestResetStartRejected(t *testing.T) {
	fc := newFakeController(t, func(cmd wire.ControlFrame) string {
		if cmd.Kind == wire.StartRun {
			return wire.AckStartFailed + ": model busy"
		}
		return wire.AckStop
	})
	c, err := Dial(context.Background(), Options{ControlAddr: fc.ln.Addr().String(), TelemetryAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()
	_, err = c.Reset(context.Background(), wire.SimulationParameters{Duration: 10})
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Command != wire.StartRun || !strings.Contains(ce.Ack, "model busy") {
		t.Fatalf("expected CommandError for start, got %v", err)
	}
	if _, err := c.Step(context.Background(), wire.Force{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after failed reset, got %v", err)
	}
}

func TestResetAcceptTimeout(t *testing.T) {
	fc := newFakeController(t, func(cmd wire.ControlFrame) string {
		if cmd.Kind == wire.StartRun {
			return wire.AckStart
		}
		return wire.AckStop
	})
	c, err := Dial(context.Background(), Options{
		ControlAddr:   fc.ln.Addr().String(),
		TelemetryAddr: "127.0.0.1:0",
		AcceptTimeout: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()
	_, err = c.Reset(context.Background(), wire.SimulationParameters{Duration: 10})
	if !errors.Is(err, telemetry.ErrTelemetry) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected accept timeout, got %v", err)
	}
}

func TestAckTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()
	c, err := Dial(context.Background(), Options{ControlAddr: ln.Addr().String(), AckTimeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.conn.Close()
	if _, err := c.Reset(context.Background(), wire.SimulationParameters{}); err == nil || !strings.Contains(err.Error(), "ack") {
		t.Fatalf("expected ack read failure, got %v", err)
	}
}
