package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Transport       string
	NATSURL         string
	NodeName        string
	NodeNum         uint
	MetricsPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("ASNIP_CONFIG", ""),
		"Path to configuration file; resolved automatically when empty (env: ASNIP_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("ASNIP_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: ASNIP_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("ASNIP_LOG_FORMAT", "text"),
		"Log format: json, text (env: ASNIP_LOG_FORMAT)")

	flag.StringVar(&cfg.Transport, "transport",
		getEnv("ASNIP_TRANSPORT", "loopback"),
		"Transport backend: loopback, nats (env: ASNIP_TRANSPORT)")

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("ASNIP_NATS_URL", "nats://localhost:4222"),
		"NATS broker URL for the nats transport (env: ASNIP_NATS_URL)")

	flag.StringVar(&cfg.NodeName, "node-name",
		getEnv("ASNIP_NODE_NAME", ""),
		"Node name announced in payloads; hostname when empty (env: ASNIP_NODE_NAME)")

	flag.UintVar(&cfg.NodeNum, "node-num",
		uint(getEnvInt("ASNIP_NODE_NUM", 0)),
		"Node number, 0 derives a random one (env: ASNIP_NODE_NUM)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("ASNIP_METRICS_PORT", 0),
		"Prometheus metrics port, 0 to disable (env: ASNIP_METRICS_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("ASNIP_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: ASNIP_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")

	flag.Usage = printDetailedHelp

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	switch cfg.Transport {
	case "loopback", "nats":
	default:
		return fmt.Errorf("invalid transport: %s", cfg.Transport)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	if cfg.NodeNum > 0xFFFFFFFF {
		return fmt.Errorf("node number out of range: %d", cfg.NodeNum)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - mesh telemetry agent

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run standalone with the local loopback transport
  %s --log-level=debug

  # Run two nodes against a local NATS broker
  %s --transport=nats --node-name=greenhouse
  %s --transport=nats --node-name=workshop

  # Expose prometheus metrics
  %s --metrics-port=9090

Version: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
