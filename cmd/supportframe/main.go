package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportframe/internal/central"
	"supportframe/internal/config"
	"supportframe/internal/peripheral"
	"supportframe/internal/server"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/supportframe/config.yaml)")
	autoStart := flag.Bool("start", false, "start advertising and simulating immediately")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg)

	engine := peripheral.NewEngine(cfg)

	if *autoStart {
		if r := engine.Start(); !r.Success {
			slog.Error("auto-start failed", "reason", r.Message)
		}
	}

	// The central role shares the machine's radio with the peripheral.
	// An adapter that cannot enable only disables the /ble routes.
	adapter := central.NewSystemAdapter()
	if err := adapter.Enable(); err != nil {
		slog.Warn("[CENTRAL] adapter enable failed, scan and connect unavailable", "error", err)
	}
	scanner := central.NewScanner(adapter)
	connector := central.NewConnector(adapter)

	srv := server.New(cfg.HTTP, engine, scanner, connector, cfg.Telemetry.UpdateInterval)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			slog.Error("http server failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	engine.Shutdown()
	slog.Info("goodbye")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== supportframe ===")
	fmt.Printf("  Adapter:  %s\n", cfg.Adapter)
	fmt.Printf("  Device:   %s\n", cfg.DeviceName)
	fmt.Printf("  HTTP:     %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
	fmt.Printf("  Interval: %s\n", cfg.Telemetry.UpdateInterval)
	fmt.Printf("  History:  %d\n", cfg.Telemetry.HistorySize)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("====================")
}
