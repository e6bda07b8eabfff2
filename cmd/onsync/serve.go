package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the guarded page shell over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					svc.Logger.Warn("close services", slog.Any("error", err))
				}
			}()
			if addr == "" {
				addr = svc.Config.AppAddr
			}
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}

			server := &http.Server{
				Handler:      svc.Router(),
				ReadTimeout:  svc.Config.AppReadTimeout,
				WriteTimeout: svc.Config.AppWriteTimeout,
			}
			errCh := make(chan error, 1)
			go func() {
				svc.Logger.Info("starting http server", slog.String("addr", listener.Addr().String()))
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			fmt.Fprintf(c.out, "listening on %s\n", listener.Addr())

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}
			svc.Logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides APP_ADDR)")
	return cmd
}
