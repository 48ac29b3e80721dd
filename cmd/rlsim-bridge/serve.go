package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rlsim-bridge/internal/admin"
	"rlsim-bridge/internal/control"
	"rlsim-bridge/internal/engine/kinematic"
	"rlsim-bridge/internal/logging"
	"rlsim-bridge/internal/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulator-side control server",
	Long:  "serve accepts control connections and runs the kinematic vessel model for each started run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.FromContext(cmd.Context())
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng := kinematic.New(log.With("component", "engine")).WithTelemetryAddr(cfg.Telemetry.Addr)
		sup := supervisor.New(eng, supervisor.Options{
			ModelPath:    cfg.Supervisor.ModelPath,
			LoadAttempts: cfg.Supervisor.LoadAttempts,
			LoadBackoff:  cfg.Supervisor.LoadBackoff,
		})
		srv := control.NewServer(cfg.Control.Addr, sup, log.With("component", "control"))

		srvDone := make(chan error, 1)
		go func() { srvDone <- srv.ListenAndServe(ctx) }()
		admDone := make(chan error, 1)
		if cfg.Admin.Addr != "" {
			adm := admin.NewServer(srv, cfg.Admin.Secret, log.With("component", "admin"))
			go func() { admDone <- adm.Start(ctx, cfg.Admin.Addr) }()
		}

		var runErr error
		serving := true
		select {
		case <-ctx.Done():
		case runErr = <-srvDone:
			serving = false
		case runErr = <-admDone:
		}
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// A start handler may be waiting on the current run; cancel it so the
		// control server can return before the supervisor is shut down.
		sup.RequestCancel(sup.Current())
		if serving {
			select {
			case err := <-srvDone:
				runErr = errors.Join(runErr, err)
			case <-shutdownCtx.Done():
				runErr = errors.Join(runErr, fmt.Errorf("control server: %w", shutdownCtx.Err()))
			}
		}
		if err := sup.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, err)
		}
		log.Info("bridge stopped")
		return runErr
	},
}
