// Package main implements the entry point for the asnip telemetry agent.
// The agent samples configured sensors, broadcasts readings over a mesh
// transport, and logs local and remote telemetry to a JSON file.
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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AkitaEngineering/asnip/agent"
	"github.com/AkitaEngineering/asnip/config"
	"github.com/AkitaEngineering/asnip/metric"
	"github.com/AkitaEngineering/asnip/sensor"
	"github.com/AkitaEngineering/asnip/transport"
	"github.com/AkitaEngineering/asnip/transport/natsbridge"
)

const (
	Version = "0.1.0"
	appName = "asnip"
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

	if err := run(); err != nil {
		slog.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfgPath := cliCfg.ConfigPath
	if cfgPath == "" {
		cfgPath = config.ResolvePath()
	}

	logger.Info("starting asnip",
		"version", Version,
		"config_path", cfgPath,
		"transport", cliCfg.Transport)

	signalCtx, signalCancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	tr, cleanup, err := setupTransport(signalCtx, cliCfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var metricsRegistry *metric.Registry
	if cliCfg.MetricsPort > 0 {
		metricsRegistry = metric.NewRegistry()
	}

	// No hardware bus opener is wired here: bme280 readers need a
	// platform driver supplied via sensor.RegistryDeps by an embedding
	// build. On a stock build those sensor types stay unavailable.
	registry := sensor.NewRegistry(sensor.RegistryDeps{Logger: logger})

	a := agent.New(agent.Deps{
		ConfigPath:      cfgPath,
		Transport:       tr,
		Registry:        registry,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	})

	if err := a.Initialize(); err != nil {
		return fmt.Errorf("initialize agent: %w", err)
	}
	if err := a.Start(signalCtx); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	group, groupCtx := errgroup.WithContext(signalCtx)

	var metricsServer *http.Server
	if metricsRegistry != nil {
		metricsServer = newMetricsServer(cliCfg.MetricsPort, metricsRegistry)
		group.Go(func() error {
			logger.Info("metrics server listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")

		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(), cliCfg.ShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", "error", err)
			}
		}

		return a.Stop(cliCfg.ShutdownTimeout)
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("asnip shutdown complete")
	return nil
}

// setupTransport builds the transport named on the command line and a
// cleanup function run at exit.
func setupTransport(
	ctx context.Context,
	cliCfg *CLIConfig,
	logger *slog.Logger,
) (transport.Transport, func(), error) {
	switch cliCfg.Transport {
	case "nats":
		opts := []natsbridge.Option{natsbridge.WithLogger(logger)}
		if cliCfg.NodeName != "" {
			opts = append(opts, natsbridge.WithName(cliCfg.NodeName))
		}
		if cliCfg.NodeNum != 0 {
			opts = append(opts, natsbridge.WithNodeNum(uint32(cliCfg.NodeNum)))
		}
		bridge := natsbridge.New(cliCfg.NATSURL, opts...)
		if err := bridge.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect transport: %w", err)
		}
		cleanup := func() {
			if err := bridge.Close(cliCfg.ShutdownTimeout); err != nil {
				logger.Warn("transport close", "error", err)
			}
		}
		return bridge, cleanup, nil

	default:
		nodeNum := uint32(cliCfg.NodeNum)
		if nodeNum == 0 {
			nodeNum = uint32(os.Getpid())
		}
		name := cliCfg.NodeName
		if name == "" {
			if host, err := os.Hostname(); err == nil {
				name = host
			}
		}
		return transport.NewLoopback(nodeNum, name), func() {}, nil
	}
}

func newMetricsServer(port int, registry *metric.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		registry.PrometheusRegistry(),
		promhttp.HandlerOpts{},
	))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
