package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
)

var (
	// ErrNotListening is returned by Start and Wait before Listen.
	ErrNotListening = errors.New("telemetry acceptor is not listening")
	// ErrSessionTaken is returned by a second Wait.
	ErrSessionTaken = errors.New("telemetry session already taken")
)

type acceptResult struct {
	session *Session
	err     error
}

// Acceptor captures exactly one inbound simulator connection per run.
type Acceptor struct {
	addr string
	opts SessionOptions

	mu      sync.Mutex
	ln      net.Listener
	result  chan acceptResult
	started bool
	taken   bool
	session *Session
}

// NewAcceptor returns an acceptor that will listen on addr. Sessions it
// captures are created with opts.
func NewAcceptor(addr string, opts SessionOptions) *Acceptor {
	return &Acceptor{addr: addr, opts: opts}
}

// Listen binds the listener. It must succeed before the simulator is told to
// start, or its dial is lost.
func (a *Acceptor) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln != nil {
		return fmt.Errorf("telemetry acceptor already listening on %s", a.ln.Addr())
	}
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listen telemetry %s: %w", a.addr, err)
	}
	a.ln = ln
	a.result = make(chan acceptResult, 1)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Start launches the one-shot background accept. The listener is closed once
// a connection is captured.
func (a *Acceptor) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return ErrNotListening
	}
	if a.started {
		return nil
	}
	a.started = true
	ln, result := a.ln, a.result
	go func() {
		conn, err := ln.Accept()
		ln.Close()
		if err != nil {
			result <- acceptResult{err: &Failure{Op: "accept", Err: err}}
			return
		}
		log := a.opts.Logger
		if log != nil {
			log.Info("telemetry connection accepted", "peer", conn.RemoteAddr().String())
		}
		result <- acceptResult{session: NewSession(conn, a.opts)}
	}()
	return nil
}

// Wait blocks until the accept completes and returns the session. It yields
// a session at most once.
func (a *Acceptor) Wait(ctx context.Context) (*Session, error) {
	a.mu.Lock()
	if a.ln == nil || !a.started {
		a.mu.Unlock()
		return nil, ErrNotListening
	}
	if a.taken {
		a.mu.Unlock()
		return nil, ErrSessionTaken
	}
	a.taken = true
	result := a.result
	a.mu.Unlock()

	select {
	case r := <-result:
		if r.err != nil {
			return nil, r.err
		}
		a.mu.Lock()
		a.session = r.session
		a.mu.Unlock()
		return r.session, nil
	case <-ctx.Done():
		// The listener is closed so the accept goroutine exits; a session it
		// may already have produced is closed with it.
		a.Close()
		go func() {
			if r := <-result; r.session != nil {
				r.session.Close()
			}
		}()
		return nil, &Failure{Op: "accept", Err: ctx.Err()}
	}
}

// Close closes the listener and any captured session. The acceptor can be
// reused with a new Listen afterwards.
func (a *Acceptor) Close() error {
	a.mu.Lock()
	ln, sess := a.ln, a.session
	pending := a.started && !a.taken
	result := a.result
	a.ln, a.session = nil, nil
	a.started, a.taken = false, false
	a.mu.Unlock()

	if pending {
		go func() {
			if r := <-result; r.session != nil {
				r.session.Close()
			}
		}()
	}

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if sess != nil {
		if err := sess.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
