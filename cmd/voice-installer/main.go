// main package for the voice-installer service
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

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-installer/internal/config"
	"github.com/book-expert/voice-installer/internal/core"
	"github.com/book-expert/voice-installer/internal/installer"
	"github.com/book-expert/voice-installer/internal/kvstore"
	"github.com/book-expert/voice-installer/internal/metrics"
	"github.com/book-expert/voice-installer/internal/objectstore"
	"github.com/book-expert/voice-installer/internal/registry"
	"github.com/book-expert/voice-installer/internal/voices"
	"github.com/book-expert/voice-installer/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
	clientName               = "voice-installer"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "voice-installer.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := logger.New(os.TempDir(), "voice-installer-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve connects to NATS, wires the components and blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(clientName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	packages, err := objectstore.New(jetstreamContext, cfg.NATS.PackageObjectStoreBucket)
	if err != nil {
		return err
	}

	registryStore, err := openRegistryStore(cfg, jetstreamContext)
	if err != nil {
		return err
	}

	inst, err := installer.New(installer.Config{
		PackageRoot:    cfg.Installer.PackageRoot,
		ScratchDirName: cfg.Installer.ScratchDirName,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create installer: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	service := voices.NewService(inst, registry.New(registryStore, log), metrics.New(promRegistry), log)

	stopMetrics := startMetricsServer(cfg.Metrics.ListenAddr, promRegistry, log)
	defer stopMetrics()

	natsWorker, err := worker.NewNatsWorker(natsConnection, worker.Subjects{
		Install: cfg.NATS.InstallSubject,
		Delete:  cfg.NATS.DeleteSubject,
		List:    cfg.NATS.ListSubject,
	}, packages, service, log)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	log.System("Voice installer initialized. Package root: %s, registry backend: %s",
		cfg.Installer.PackageRoot, cfg.Registry.Backend)

	return natsWorker.Run(ctx)
}

func openRegistryStore(cfg *config.Config, jetstreamContext nats.JetStreamContext) (core.KeyValueStore, error) {
	switch cfg.Registry.Backend {
	case config.BackendFile:
		store, err := kvstore.NewFileStore(cfg.Registry.FileDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open registry directory: %w", err)
		}

		return store, nil
	default:
		store, err := kvstore.NewNatsKV(jetstreamContext, cfg.NATS.RegistryKVBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open registry bucket: %w", err)
		}

		return store, nil
	}
}

// startMetricsServer serves /metrics on addr and returns a function that stops it.
func startMetricsServer(addr string, gatherer prometheus.Gatherer, log *logger.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server on %s stopped: %v", addr, err)
		}
	}()

	log.Info("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		err := server.Shutdown(ctx)
		if err != nil {
			log.Warn("Failed to stop metrics server: %v", err)
		}
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
