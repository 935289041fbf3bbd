package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pysugar/launcher-accounts/internal/api"
	"github.com/pysugar/launcher-accounts/internal/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the local account API and keep tokens refreshed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.svc.Refresher().Start(ctx)

			addr := a.cfg.Server.Addr()
			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(a.svc, a.db, a.log),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			a.log.Info("🚀 launcher-auth starting", zap.String("url", "http://"+addr))
			a.log.Info("🔑 API key", zap.String("key", api.MaskToken(db.GetAPIKey(a.db))))

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return errors.Wrap(err, "server failed")
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.log.Info("🛑 Shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
}
