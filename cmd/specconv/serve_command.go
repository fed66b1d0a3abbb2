package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/kilonova-lab/specconv/internal/api"
	"github.com/kilonova-lab/specconv/internal/catalog"
	"github.com/kilonova-lab/specconv/internal/convert"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inspection and conversion HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			policy, err := ctx.wavelengthPolicy(false)
			if err != nil {
				return err
			}
			perm, err := cfg.Output.Perm()
			if err != nil {
				return err
			}
			if err := cfg.EnsureOutputDirectory(); err != nil {
				return err
			}

			converter, err := convert.New(convert.Options{
				Format:           cfg.Output.Format,
				WavelengthPolicy: policy,
				FileMode:         perm,
			}, logger)
			if err != nil {
				return err
			}

			deps := &api.Dependencies{
				Converter: converter,
				OutputDir: cfg.Output.Directory,
				Policy:    policy,
				Version:   Version,
				Logger:    logger,
			}
			if cfg.Processing.Catalog {
				ledger, err := catalog.Open(cmd.Context(), cfg.Output.Directory)
				if err != nil {
					return fmt.Errorf("open catalog: %w", err)
				}
				defer ledger.Close()
				logger.Info("catalog opened", "path", ledger.Path())
				converter.SetRecorder(ledger)
				deps.Ledger = ledger
			}

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			api.SetupMiddleware(e, api.MiddlewareConfig{
				BodyLimit:      cfg.Server.BodyLimit,
				RequestTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
				Logger:         logger,
			})
			api.RegisterRoutes(e, api.NewHandlers(deps))

			if addr == "" {
				addr = cfg.GetServerAddr()
			}
			server := &http.Server{
				Addr:         addr,
				Handler:      e,
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
				IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server listening", "component", "http", "addr", addr, "output_dir", cfg.Output.Directory)
				errCh <- e.StartServer(server)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			logger.Info("shutting down", "component", "http")
			return e.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.bind_address and server.port)")
	return cmd
}
