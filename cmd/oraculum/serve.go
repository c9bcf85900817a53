package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alienxp03/oraculum/internal/registry"
	"github.com/alienxp03/oraculum/internal/simulation"
	"github.com/alienxp03/oraculum/internal/telemetry"
	"github.com/alienxp03/oraculum/web/handlers"
)

const shutdownTimeout = 30 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the inference backend, then serve the simulation API.

The backend must report ready before the server listens; if it does not,
the process exits with a non-zero status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("port") {
			servePort = appConfig.Server.Port
		}
		return runServer(servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Server port")
}

func runServer(port int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Setup(appConfig.Telemetry.Enabled, appConfig.Telemetry.ServiceName, logger)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer shutdownTracer(context.Background())

	gw, err := appConfig.OpenGateway(ctx, logger)
	if err != nil {
		logger.Error("Inference backend did not become ready", "error", err)
		os.Exit(1)
	}
	defer gw.Close()

	svc := simulation.New(gw, registry.New(), appConfig.SimulationSettings(),
		simulation.WithSkills(appConfig.CreateSkills(gw)),
		simulation.WithLogger(logger),
	)
	h := handlers.New(svc, handlers.WithLogger(logger))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", port, "backend", appConfig.Backend.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Jobs abandoned at shutdown", "error", err)
	}
	return nil
}
