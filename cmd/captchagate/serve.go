package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/captchagate/internal/config"
	"github.com/Rorqualx/captchagate/internal/handlers"
	"github.com/Rorqualx/captchagate/internal/metrics"
	"github.com/Rorqualx/captchagate/internal/middleware"
	"github.com/Rorqualx/captchagate/pkg/version"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the interception HTTP API",
		Long: `Serve exposes the interception stage over HTTP:

  POST /v1/process   run a fetched page through the stage
  GET  /v1/solvers   provider statistics (?balance=true queries balances)
  GET  /health       readiness

Prometheus metrics are served on PROMETHEUS_PORT when enabled.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("host", "", "Override HOST")
	cmd.Flags().Int("port", 0, "Override PORT")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Port = port
	}

	printBanner(cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !cfg.HasCaptchaProviders() {
		log.Warn().Msg("No solver providers configured, every detected challenge will be rejected")
	}

	g, gctx := errgroup.WithContext(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           apiHandler(cfg, handlersFor(a)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.CaptchaSolverTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	serveHTTP(g, gctx, server, "API server")

	if cfg.PrometheusEnabled {
		metrics.SetBuildInfo(version.Full(), version.GoVersion())

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.PrometheusPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
		}
		serveHTTP(g, gctx, metricsServer, "Prometheus metrics server")

		g.Go(func() error {
			metrics.StartMemoryCollector(10*time.Second, gctx.Done())
			return nil
		})
	}

	log.Info().
		Str("address", server.Addr).
		Bool("metrics_enabled", cfg.PrometheusEnabled).
		Bool("api_key_enabled", cfg.APIKeyEnabled).
		Msg("captchagate is ready to accept requests")

	err = g.Wait()
	log.Info().Msg("Shutdown complete")
	return err
}

// apiHandler applies the middleware chain to the API router. Recovery is
// outermost so panics anywhere below are caught.
func apiHandler(cfg *config.Config, h *handlers.Handler) http.Handler {
	return middleware.Chain(
		middleware.Recovery,
		middleware.Logging,
		middleware.SecurityHeaders,
		middleware.When(cfg.APIKeyEnabled, middleware.APIKey(cfg)),
	)(handlers.NewRouter(h))
}

// serveHTTP runs srv in g and shuts it down when ctx ends.
func serveHTTP(g *errgroup.Group, ctx context.Context, srv *http.Server, name string) {
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg(name + " started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg(name + " shutdown error")
		}
		return nil
	})
}

// handlersFor builds the API handlers over the app stage and solver chain.
func handlersFor(a *app) *handlers.Handler {
	return handlers.New(a.stage, a.chain)
}
