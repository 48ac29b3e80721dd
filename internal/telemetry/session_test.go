package telemetry

import (
	"context"
	"errors"
	"math"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"rlsim-bridge/internal/wire"
)

type sampleSink struct {
	mu      sync.Mutex
	samples []Sample
}

func (s *sampleSink) WriteSample(v Sample) error {
	s.mu.Lock()
	s.samples = append(s.samples, v)
	s.mu.Unlock()
	return nil
}

func (s *sampleSink) all() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.samples...)
}

// peer reads force frames from the simulator end of a pipe.
type peer struct {
	conn net.Conn
	fr   *wire.FrameReader
}

func newPair(t *testing.T, opts SessionOptions) (*Session, *peer) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return NewSession(a, opts), &peer{conn: b, fr: wire.NewFrameReader(b)}
}

func (p *peer) readForce(t *testing.T) wire.Force {
	t.Helper()
	frame, err := p.fr.ReadFrame()
	if err != nil {
		t.Errorf("peer read failed: %v", err)
		return wire.Force{}
	}
	f, err := wire.DecodeForce(frame)
	if err != nil {
		t.Errorf("peer decode failed: %v", err)
	}
	return f
}

func TestExchangeDecodesPose(t *testing.T) {
	sink := &sampleSink{}
	s, p := newPair(t, SessionOptions{RunID: "run-1", Writer: sink})
	go func() {
		f := p.readForce(t)
		if f != (wire.Force{X: 1000, Y: -250.5, N: 0}) {
			t.Errorf("unexpected force %+v", f)
		}
		p.conn.Write([]byte("#x3004.296164y2756.962127z-165.185877e"))
	}()

	pose, err := s.Exchange(context.Background(), wire.Force{X: 1000, Y: -250.5})
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if pose.X != 3004.296164 || pose.Y != 2756.962127 {
		t.Fatalf("unexpected position %+v", pose)
	}
	if want := -165.185877 * math.Pi / 180; math.Abs(pose.Heading-want) > 1e-9 {
		t.Fatalf("expected heading %v rad, got %v", want, pose.Heading)
	}
	got := sink.all()
	if len(got) != 1 || got[0].RunID != "run-1" || got[0].Tick != 1 || got[0].Pose != pose {
		t.Fatalf("unexpected samples %+v", got)
	}
	if s.Ticks() != 1 {
		t.Fatalf("expected 1 tick, got %d", s.Ticks())
	}
}

func TestExchangeEOFBreaksSession(t *testing.T) {
	s, p := newPair(t, SessionOptions{})
	go func() {
		p.readForce(t)
		p.conn.Close()
	}()
	_, err := s.Exchange(context.Background(), wire.Force{})
	if !errors.Is(err, ErrTelemetry) {
		t.Fatalf("expected telemetry failure, got %v", err)
	}
	var f *Failure
	if !errors.As(err, &f) || f.Op != "read" {
		t.Fatalf("expected read failure, got %v", err)
	}
	_, again := s.Exchange(context.Background(), wire.Force{})
	if again != err {
		t.Fatalf("expected sticky failure, got %v", again)
	}
}

func TestExchangeGarbageReply(t *testing.T) {
	s, p := newPair(t, SessionOptions{})
	go func() {
		p.readForce(t)
		p.conn.Write([]byte("#x1y2e"))
	}()
	_, err := s.Exchange(context.Background(), wire.Force{})
	if !errors.Is(err, ErrTelemetry) || !errors.Is(err, wire.ErrParse) {
		t.Fatalf("expected decode failure wrapping ErrParse, got %v", err)
	}
}

func TestExchangeSingleInFlight(t *testing.T) {
	s, p := newPair(t, SessionOptions{})
	received := make(chan struct{})
	reply := make(chan struct{})
	go func() {
		p.readForce(t)
		close(received)
		<-reply
		p.conn.Write([]byte("#x1y2z90e"))
	}()

	first := make(chan error, 1)
	go func() {
		_, err := s.Exchange(context.Background(), wire.Force{X: 1})
		first <- err
	}()
	<-received
	if _, err := s.Exchange(context.Background(), wire.Force{X: 2}); !errors.Is(err, ErrExchangeInFlight) {
		t.Fatalf("expected ErrExchangeInFlight, got %v", err)
	}
	close(reply)
	if err := <-first; err != nil {
		t.Fatalf("first exchange failed: %v", err)
	}
}

func TestExchangeReadTimeout(t *testing.T) {
	s, p := newPair(t, SessionOptions{ReadTimeout: 20 * time.Millisecond})
	go p.readForce(t)
	_, err := s.Exchange(context.Background(), wire.Force{})
	if !errors.Is(err, ErrTelemetry) || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("expected deadline failure, got %v", err)
	}
}

func TestExchangeContextCancel(t *testing.T) {
	s, p := newPair(t, SessionOptions{})
	go p.readForce(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Exchange(ctx, wire.Force{})
	if !errors.Is(err, ErrTelemetry) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context failure, got %v", err)
	}
}

func TestExchangeAfterClose(t *testing.T) {
	s, _ := newPair(t, SessionOptions{})
	s.Close()
	if _, err := s.Exchange(context.Background(), wire.Force{}); !errors.Is(err, ErrTelemetry) {
		t.Fatalf("expected failure after close, got %v", err)
	}
}
