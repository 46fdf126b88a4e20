// Package main provides the semreason binary entry point.
// Semreason keeps derived metadata of repository entries in step with the
// concept hierarchies of fact-enabled contexts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/semreason/config"
	rdfexport "github.com/c360studio/semreason/processor/rdf-export"
	"github.com/c360studio/semreason/processor/reasoner"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semreason"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "semreason",
		Short: "Reasoning over repository concept hierarchies",
		Long: `Semreason derives metadata for repository entries from the concept
hierarchies declared in fact-enabled contexts.

It consumes entry notifications from NATS, maintains a forest index of
the hierarchies and republishes each recomputed derived graph.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default user config if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.NewLoader(newLogger(logLevel)).EnsureUserConfig()
		},
	})

	return cmd
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, configPath, logLevel string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	loader := config.NewLoader(logger)
	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	if err := ensureStreams(ctx, natsClient, logger); err != nil {
		return err
	}

	deps := component.Dependencies{
		NATSClient: natsClient,
		Logger:     logger,
	}

	rawConfig, err := cfg.ComponentJSON()
	if err != nil {
		return err
	}
	discoverable, err := reasoner.NewComponent(rawConfig, deps)
	if err != nil {
		return fmt.Errorf("create reasoner: %w", err)
	}
	comp := discoverable.(*reasoner.Component)

	var exporter *rdfexport.Component
	if cfg.Export.Enabled {
		rawExport, err := cfg.ExportComponentJSON()
		if err != nil {
			return err
		}
		d, err := rdfexport.NewComponent(rawExport, deps)
		if err != nil {
			return fmt.Errorf("create rdf-export: %w", err)
		}
		exporter = d.(*rdfexport.Component)
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := comp.Start(signalCtx); err != nil {
		return fmt.Errorf("start reasoner: %w", err)
	}
	if exporter != nil {
		if err := exporter.Start(signalCtx); err != nil {
			_ = comp.Stop(5 * time.Second)
			return fmt.Errorf("start rdf-export: %w", err)
		}
	}

	watcher, err := loader.Watch(signalCtx, configPath, func(next *config.Config) {
		comp.Authorizer().SetAdmins(next.Admin.User, next.Admin.Group)
		logger.Info("Admin settings applied",
			"admin_user", next.Admin.User,
			"admin_group", len(next.Admin.Group))
	})
	switch {
	case errors.Is(err, config.ErrNothingToWatch):
		logger.Debug("No config file to watch")
	case err != nil:
		logger.Warn("Config watching disabled", "error", err)
	default:
		defer watcher.Close()
	}

	mux := http.NewServeMux()
	comp.RegisterHTTPHandlers("/reasoner/", mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := comp.Health()
		if !h.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, h.Status)
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTP.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("Semreason ready",
		"version", Version,
		"base_url", cfg.Repository.BaseURL,
		"export", cfg.Export.Enabled)

	select {
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Error("HTTP server failed", "error", err)
	}

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}
	if exporter != nil {
		if err := exporter.Stop(shutdownTimeout); err != nil {
			logger.Error("Error stopping rdf-export", "error", err)
		}
	}
	if err := comp.Stop(shutdownTimeout); err != nil {
		logger.Error("Error stopping reasoner", "error", err)
	}

	logger.Info("Semreason shutdown complete")
	return nil
}

func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := cfg.NATS.URL

	// The generic NATS_URL applies unless SEMREASON_NATS_URL already did
	if os.Getenv(config.EnvNATSURL) == "" {
		if envURL := os.Getenv("NATS_URL"); envURL != "" {
			natsURL = envURL
		}
	}

	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set SEMREASON_NATS_URL to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// streams covers every subject the components consume or publish.
var streams = []jetstream.StreamConfig{
	{Name: "REPOSITORY", Subjects: []string{"repository.>"}},
	{Name: "GRAPH", Subjects: []string{"graph.>"}, MaxAge: 24 * time.Hour},
}

func ensureStreams(ctx context.Context, natsClient *natsclient.Client, logger *slog.Logger) error {
	logger.Debug("Creating JetStream streams")
	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	for _, sc := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("ensure stream %s: %w", sc.Name, err)
		}
	}
	logger.Debug("JetStream streams ready")
	return nil
}
