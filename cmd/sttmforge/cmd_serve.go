package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sttmforge/internal/logging"
	"sttmforge/internal/prompts"
	"sttmforge/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := opts.buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if watch || cfg.Templates.Watch {
				w, err := prompts.NewWatcher(a.loader)
				if err != nil {
					return err
				}
				if err := w.Start(ctx); err != nil {
					logging.BootWarn("template watcher disabled: %v", err)
				} else {
					defer w.Stop()
				}
			}

			srv, err := server.New(a.gov, a.stats, logging.Get(logging.CategoryServer).Zap(), cfg.Server,
				server.WithBatchLimit(cfg.Batch.Concurrency))
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload prompt templates when they change on disk")
	return cmd
}
