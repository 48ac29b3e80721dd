package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"rlsim-bridge/internal/engine"
	"rlsim-bridge/internal/engine/enginetest"
	"rlsim-bridge/internal/wire"
)

func testParams() wire.SimulationParameters {
	return wire.SimulationParameters{
		Pose:        wire.Pose{X: 0, Y: 0, Heading: 1.5708},
		Environment: wire.Environment{WaveHs: 2, WaveTz: 8, WaveDir: 45, CurrentSpeed: 0.5, CurrentDir: 90, WindSpeed: 10, WindDir: 180},
		Duration:    60,
	}
}

func newTestSupervisor(e engine.Engine) *Supervisor {
	return New(e, Options{ModelPath: "tanker.yaml", LoadAttempts: 3, LoadBackoff: -1})
}

func indexOf(events []string, ev string) int {
	for i, e := range events {
		if e == ev {
			return i
		}
	}
	return -1
}

func TestStartRunAppliesParameters(t *testing.T) {
	fe := &enginetest.Engine{Steps: 5}
	s := newTestSupervisor(fe)
	h, err := s.StartRun(context.Background(), testParams())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	outcome, err := s.AwaitCompletion(h)
	if err != nil || outcome != engine.OutcomeCompleted {
		t.Fatalf("expected completed run, got %v %v", outcome, err)
	}
	m := fe.Models()[0]
	if m.Pose() != testParams().Pose || m.Environment() != testParams().Environment || m.Duration() != 60 {
		t.Fatalf("parameters not applied: %+v %+v %v", m.Pose(), m.Environment(), m.Duration())
	}
	if !m.Closed() {
		t.Fatalf("expected model released after await")
	}
	if s.Current() != nil {
		t.Fatalf("expected no current run after await")
	}
	if h.State() != StateTerminated {
		t.Fatalf("expected terminated state, got %v", h.State())
	}
}

func TestStartRunRetriesLoad(t *testing.T) {
	fe := &enginetest.Engine{FailLoads: 2, Steps: 1}
	s := newTestSupervisor(fe)
	h, err := s.StartRun(context.Background(), testParams())
	if err != nil {
		t.Fatalf("expected third attempt to succeed: %v", err)
	}
	s.AwaitCompletion(h)
	if fe.Loads() != 3 {
		t.Fatalf("expected 3 load attempts, got %d", fe.Loads())
	}
}

func TestStartRunLoadFailure(t *testing.T) {
	fe := &enginetest.Engine{FailLoads: 10}
	s := newTestSupervisor(fe)
	h, err := s.StartRun(context.Background(), testParams())
	if h != nil {
		t.Fatalf("expected no handle on load failure")
	}
	if !errors.Is(err, ErrLoad) || !errors.Is(err, engine.ErrModelBusy) {
		t.Fatalf("expected ErrLoad wrapping ErrModelBusy, got %v", err)
	}
	var le *LoadError
	if !errors.As(err, &le) || le.Attempts != 3 {
		t.Fatalf("expected LoadError with 3 attempts, got %v", err)
	}
	if s.Current() != nil {
		t.Fatalf("expected no current run")
	}
	// The supervisor stays usable.
	fe.FailLoads = 0
	fe.Steps = 1
	h, err = s.StartRun(context.Background(), testParams())
	if err != nil {
		t.Fatalf("expected start after load failure to succeed: %v", err)
	}
	s.AwaitCompletion(h)
}

func TestStartRunLoadCancelledContext(t *testing.T) {
	fe := &enginetest.Engine{FailLoads: 10}
	s := New(fe, Options{ModelPath: "m", LoadAttempts: 5, LoadBackoff: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.StartRun(ctx, testParams())
	if !errors.Is(err, ErrLoad) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected load error from deadline, got %v", err)
	}
	if fe.Loads() != 1 {
		t.Fatalf("expected backoff to be interrupted after one attempt, got %d", fe.Loads())
	}
}

func TestStartRunRejectsSecondRun(t *testing.T) {
	fe := &enginetest.Engine{}
	s := newTestSupervisor(fe)
	h, err := s.StartRun(context.Background(), testParams())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := s.StartRun(context.Background(), testParams()); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}
	s.RequestCancel(h)
	s.AwaitCompletion(h)
	if fe.Loads() != 1 {
		t.Fatalf("second start must not load, got %d loads", fe.Loads())
	}
}

func TestRequestCancelStopsRun(t *testing.T) {
	fe := &enginetest.Engine{StepInterval: 5 * time.Millisecond}
	s := newTestSupervisor(fe)
	h, err := s.StartRun(context.Background(), testParams())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	s.RequestCancel(h)
	if st := h.State(); st != StateCancelRequested && st != StateTerminated {
		t.Fatalf("expected cancel requested, got %v", st)
	}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("run did not stop after cancel")
	}
	outcome, err := s.AwaitCompletion(h)
	if err != nil || outcome != engine.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %v %v", outcome, err)
	}
	if !fe.Models()[0].Paused() {
		t.Fatalf("expected engine paused from progress callback")
	}
	if h.SimTime() <= 0 {
		t.Fatalf("expected progress to record sim time")
	}
}

func TestRequestCancelAfterTerminationIsNoop(t *testing.T) {
	fe := &enginetest.Engine{Steps: 1}
	s := newTestSupervisor(fe)
	h, _ := s.StartRun(context.Background(), testParams())
	<-h.Done()
	s.RequestCancel(h)
	if h.State() != StateTerminated {
		t.Fatalf("expected terminated state to stick, got %v", h.State())
	}
	if outcome, _ := s.AwaitCompletion(h); outcome != engine.OutcomeCompleted {
		t.Fatalf("expected completed, got %v", outcome)
	}
	s.RequestCancel(nil)
}

func TestAwaitCompletionNilHandle(t *testing.T) {
	s := newTestSupervisor(&enginetest.Engine{})
	outcome, err := s.AwaitCompletion(nil)
	if outcome != engine.OutcomeUnknown || err != nil {
		t.Fatalf("expected unknown outcome and nil error, got %v %v", outcome, err)
	}
	if s.Current() != nil {
		t.Fatalf("expected no current run")
	}
}

func TestStopThenStartSerializes(t *testing.T) {
	hold := make(chan struct{})
	fe := &enginetest.Engine{Hold: hold}
	s := newTestSupervisor(fe)
	h1, err := s.StartRun(context.Background(), testParams())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.RequestCancel(h1)

	awaited := make(chan struct{})
	go func() {
		s.AwaitCompletion(h1)
		close(awaited)
	}()
	select {
	case <-awaited:
		t.Fatalf("await returned before the run exited")
	case <-time.After(20 * time.Millisecond):
	}
	close(hold)
	<-awaited

	h2, err := s.StartRun(context.Background(), testParams())
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	s.RequestCancel(h2)
	s.AwaitCompletion(h2)

	ev := fe.Events()
	exit1, close1, load2 := indexOf(ev, "run-exit#1"), indexOf(ev, "close#1"), indexOf(ev, "load#2")
	if exit1 < 0 || close1 < 0 || load2 < 0 || !(exit1 < close1 && close1 < load2) {
		t.Fatalf("expected run 1 to exit and release before load 2, got %v", ev)
	}
	if h1.ID() == h2.ID() {
		t.Fatalf("expected distinct run ids")
	}
}

func TestRunErrorLeavesSupervisorUsable(t *testing.T) {
	boom := errors.New("solver diverged")
	fe := &enginetest.Engine{Steps: 2, RunErr: boom}
	s := newTestSupervisor(fe)
	h, _ := s.StartRun(context.Background(), testParams())
	outcome, err := s.AwaitCompletion(h)
	if outcome != engine.OutcomeFailed || !errors.Is(err, boom) {
		t.Fatalf("expected failed outcome, got %v %v", outcome, err)
	}
	fe.RunErr = nil
	h2, err := s.StartRun(context.Background(), testParams())
	if err != nil {
		t.Fatalf("expected supervisor usable after failure: %v", err)
	}
	if outcome, _ := s.AwaitCompletion(h2); outcome != engine.OutcomeCompleted {
		t.Fatalf("expected completed, got %v", outcome)
	}
}

func TestEnginePanicIsRecovered(t *testing.T) {
	fe := &enginetest.Engine{OnRun: func(*enginetest.Model) { panic("bad model") }}
	s := newTestSupervisor(fe)
	h, err := s.StartRun(context.Background(), testParams())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	outcome, err := s.AwaitCompletion(h)
	if outcome != engine.OutcomeFailed || err == nil {
		t.Fatalf("expected failed outcome from panic, got %v %v", outcome, err)
	}
	if !fe.Models()[0].Closed() {
		t.Fatalf("expected model released after panic")
	}
}

func TestShutdownCancelsCurrent(t *testing.T) {
	fe := &enginetest.Engine{}
	s := newTestSupervisor(fe)
	h, _ := s.StartRun(context.Background(), testParams())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if h.Outcome() != engine.OutcomeCancelled || s.Current() != nil {
		t.Fatalf("expected cancelled run and empty supervisor")
	}
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("idle shutdown failed: %v", err)
	}
}
