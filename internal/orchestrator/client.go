// Package orchestrator is the RL-side client: it sequences the control and
// telemetry handshake for each run and drives the tick loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"rlsim-bridge/internal/telemetry"
	"rlsim-bridge/internal/wire"
)

// ErrNoSession is returned by Step before a successful Reset.
var ErrNoSession = errors.New("no telemetry session, call Reset first")

// CommandError is a command the server acknowledged as failed.
type CommandError struct {
	Command wire.CommandKind
	Ack     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Command, e.Ack)
}

// Options configures a Client.
type Options struct {
	ControlAddr   string // controller server, e.g. 127.0.0.1:8888
	TelemetryAddr string // local listen address, e.g. :2222
	// AcceptTimeout bounds the wait for the simulator to dial in. Zero waits forever.
	AcceptTimeout time.Duration
	// AckTimeout bounds each acknowledgement read. Zero waits forever.
	AckTimeout time.Duration
	// ReadTimeout bounds each telemetry exchange. Zero waits forever.
	ReadTimeout time.Duration
	// WriteTimeout bounds each force frame write. Zero waits forever.
	WriteTimeout time.Duration
	Writer       telemetry.SampleWriter
	Logger       *slog.Logger
}

// Client holds one control connection and the telemetry session of the
// current run.
type Client struct {
	conn net.Conn
	opts Options
	log  *slog.Logger

	acceptor *telemetry.Acceptor
	session  *telemetry.Session
	runID    string
}

// Dial connects the control channel.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.ControlAddr)
	if err != nil {
		return nil, fmt.Errorf("dial control %s: %w", opts.ControlAddr, err)
	}
	log.Info("control connected", "addr", opts.ControlAddr)
	return &Client{conn: conn, opts: opts, log: log}, nil
}

// RunID returns the client-side identifier of the current run.
func (c *Client) RunID() string { return c.runID }

// Reset stops any previous run and starts a new one, returning the initial
// pose reported by the simulator.
func (c *Client) Reset(ctx context.Context, p wire.SimulationParameters) (wire.Pose, error) {
	if _, err := c.command(ctx, wire.StopFrame()); err != nil {
		return wire.Pose{}, err
	}

	if err := c.closeTelemetry(); err != nil {
		c.log.Warn("closing previous telemetry failed", "err", err)
	}
	c.runID = uuid.New().String()
	c.acceptor = telemetry.NewAcceptor(c.opts.TelemetryAddr, telemetry.SessionOptions{
		ReadTimeout:  c.opts.ReadTimeout,
		WriteTimeout: c.opts.WriteTimeout,
		RunID:        c.runID,
		Writer:       c.opts.Writer,
		Logger:       c.log,
	})
	if err := c.acceptor.Listen(); err != nil {
		return wire.Pose{}, err
	}
	if err := c.acceptor.Start(); err != nil {
		return wire.Pose{}, err
	}

	if _, err := c.command(ctx, wire.StartFrame(p)); err != nil {
		c.closeTelemetry()
		return wire.Pose{}, err
	}

	wctx := ctx
	if c.opts.AcceptTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, c.opts.AcceptTimeout)
		defer cancel()
	}
	sess, err := c.acceptor.Wait(wctx)
	if err != nil {
		c.closeTelemetry()
		return wire.Pose{}, fmt.Errorf("wait for simulator: %w", err)
	}
	c.session = sess

	pose, err := sess.Exchange(ctx, wire.Force{})
	if err != nil {
		return wire.Pose{}, fmt.Errorf("initial pose: %w", err)
	}
	c.log.Info("run reset", "run_id", c.runID, "x", pose.X, "y", pose.Y, "heading_rad", pose.Heading)
	return pose, nil
}

// Step sends f and returns the next pose.
func (c *Client) Step(ctx context.Context, f wire.Force) (wire.Pose, error) {
	if c.session == nil {
		return wire.Pose{}, ErrNoSession
	}
	return c.session.Exchange(ctx, f)
}

// Close stops the run, closes telemetry, then closes the control connection.
func (c *Client) Close() error {
	ctx := context.Background()
	var errs []error
	if _, err := c.command(ctx, wire.StopFrame()); err != nil {
		errs = append(errs, err)
	}
	if err := c.closeTelemetry(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.conn.Write(wire.EncodeControl(wire.CloseFrame())); err != nil {
		errs = append(errs, fmt.Errorf("send close: %w", err))
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Client) closeTelemetry() error {
	c.session = nil
	if c.acceptor == nil {
		return nil
	}
	err := c.acceptor.Close()
	c.acceptor = nil
	return err
}

// command sends one control frame and reads its acknowledgement.
func (c *Client) command(ctx context.Context, f wire.ControlFrame) (string, error) {
	var dl time.Time
	if c.opts.AckTimeout > 0 {
		dl = time.Now().Add(c.opts.AckTimeout)
	}
	if err := c.conn.SetDeadline(dl); err != nil {
		return "", fmt.Errorf("%s: %w", f.Kind, err)
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := c.conn.Write(wire.EncodeControl(f)); err != nil {
		return "", fmt.Errorf("send %s: %w", f.Kind, err)
	}
	buf := make([]byte, wire.MaxFrameSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		}
		return "", fmt.Errorf("read %s ack: %w", f.Kind, err)
	}
	ack := string(buf[:n])
	c.log.Debug("control ack", "cmd", f.Kind, "ack", ack)
	if strings.HasPrefix(ack, wire.AckStartFailed) {
		return ack, &CommandError{Command: f.Kind, Ack: ack}
	}
	return ack, nil
}
