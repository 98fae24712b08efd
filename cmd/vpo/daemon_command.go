package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vpo/internal/daemon"
	"vpo/internal/deps"
	"vpo/internal/executor"
	"vpo/internal/logging"
	"vpo/internal/media/ffprobe"
	"vpo/internal/plugins"
	"vpo/internal/store"
	"vpo/internal/tools"
	"vpo/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the background worker daemon",
		Long: "Runs the worker pool in the foreground until interrupted. Only one " +
			"daemon per configuration may run at a time; a lock file in the log " +
			"directory enforces this.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := logging.NewForDir(cfg.Paths.LogDir, cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}

			prober := ffprobe.NewProber(cfg.FFprobeBinary())
			registry := plugins.NewRegistry()
			dispatcher := tools.NewDispatcher(cfg, deps.Probe(cfg), logger)
			exec := executor.New(cfg, st, prober, dispatcher, registry, logger)
			manager := workflow.NewManager(cfg, st, exec, prober, logger)

			d, err := daemon.New(cfg, st, manager, logger)
			if err != nil {
				st.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}

			<-signalCtx.Done()
			logger.Info("shutting down")
			d.Stop()
			return nil
		},
	}
}
