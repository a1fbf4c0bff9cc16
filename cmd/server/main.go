package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/typedwire/relay/internal/config"
	"github.com/typedwire/relay/internal/metrics"
	"github.com/typedwire/relay/internal/relay"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relay-server",
		Short: "Typed message relay over TCP and WebSocket",
		Long: `relay-server runs a single-room message relay.

Peers connect over raw TCP or WebSocket on the same port, join under a
name, and everything they send is fanned out to everyone else. Settings
come from RELAY_* environment variables, with an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	setupLogging(cfg)

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		go serveMetrics(cfg.MetricsAddr, reg)
	}

	srv := relay.New(cfg.ListenAddr,
		relay.WithHandshakeTimeout(cfg.HandshakeTimeout),
		relay.WithMaxPayload(cfg.MaxFrameBytes),
		relay.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		relay.WithMetrics(m),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, relay.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigChan:
		slog.Info("signal_received", "signal", sig.String())
		srv.Stop()
		<-errChan
	}
	return nil
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	slog.Info("metrics_listening", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics_server_failed", "error", err)
	}
}
