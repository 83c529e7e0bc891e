// Command foremand is the Foreman supervisor daemon. It wires the plan
// store, executor, health monitor, and HTTP control surface together from
// the YAML config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GoCodeAlone/foreman/agent"
	"github.com/GoCodeAlone/foreman/config"
	"github.com/GoCodeAlone/foreman/health"
	"github.com/GoCodeAlone/foreman/internal/version"
	"github.com/GoCodeAlone/foreman/plan"
	"github.com/GoCodeAlone/foreman/provider"
	"github.com/GoCodeAlone/foreman/provider/mock"
	"github.com/GoCodeAlone/foreman/runner"
	"github.com/GoCodeAlone/foreman/server"
)

var configPath = flag.String("config", "foreman.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting foremand",
		"version", version.Version,
		"commit", version.Commit,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data dir %s: %v", cfg.DataDir, err)
	}

	// Plan store, restored from the last snapshot if one exists.
	snapPath := filepath.Join(cfg.DataDir, "plans.db")
	snapshots, err := plan.NewSnapshotStore(snapPath)
	if err != nil {
		log.Fatalf("Failed to open snapshot store %s: %v", snapPath, err)
	}
	store, err := snapshots.Load()
	if err != nil {
		log.Fatalf("Failed to load snapshot %s: %v", snapPath, err)
	}

	prov := buildProvider(cfg)
	build, tests, prober, closeRunner := buildRunner(cfg, logger)

	exec := agent.NewExecutor(agent.Deps{
		Store:    store,
		Provider: prov,
		Build:    build,
		Tests:    tests,
		Prober:   prober,
	}, agent.Config{
		TaskTimeout:      cfg.Executor.TaskTimeout.Std(),
		IterationDelay:   cfg.Executor.IterationDelay.Std(),
		WatchdogInterval: cfg.Executor.WatchdogInterval.Std(),
		HealthInterval:   cfg.Executor.HealthInterval.Std(),
		TestGate:         cfg.Executor.TestGate,
		BuildGate:        cfg.Executor.BuildGate,
		AutoRecovery:     cfg.Executor.AutoRecovery,
		WorkDir:          cfg.Runner.WorkDir,
	}, logger)

	monitor := health.NewMonitor(exec, store, health.Config{
		ProbeURL:     cfg.Health.ProbeURL,
		ProbeTimeout: cfg.Health.ProbeTimeout.Std(),
	}, logger)
	if err := monitor.Start(cfg.Health.Interval.Std()); err != nil {
		log.Fatalf("Failed to start health monitor: %v", err)
	}

	srv := server.New(*cfg, version.Version, logger)
	srv.SetStore(store)
	srv.SetAgent(exec)
	srv.SetHealth(monitor)
	srv.SetProber(prober)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Printf("Foreman running on http://localhost%s\n", cfg.Server.Addr)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	fmt.Println("Shutting down...")
	monitor.Stop()
	exec.Stop()
	<-exec.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	if err := snapshots.Save(store); err != nil {
		logger.Error("snapshot save error", "error", err)
	}
	if err := snapshots.Close(); err != nil {
		logger.Error("snapshot close error", "error", err)
	}
	if closeRunner != nil {
		closeRunner(shutdownCtx)
	}
	fmt.Println("Shutdown complete")
}

// loadConfig falls back to defaults when the config file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildProvider(cfg *config.Config) provider.Provider {
	switch cfg.Provider.Name {
	case "anthropic":
		return provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey: cfg.Provider.APIKey,
			Model:  cfg.Provider.Model,
		})
	default:
		return mock.New()
	}
}

// buildRunner returns the build runner, test runner, and prober per config,
// plus a close func for docker mode.
func buildRunner(cfg *config.Config, logger *slog.Logger) (runner.BuildRunner, runner.TestRunner, runner.Prober, func(context.Context)) {
	if cfg.Runner.Mode == "docker" {
		d := runner.NewDocker(cfg.Runner.WorkDir, runner.DockerSpec{
			Image:        cfg.Runner.Image,
			BuildCommand: cfg.Runner.BuildCommand,
			TestCommand:  cfg.Runner.TestCommand,
		})
		if d.IsAvailable() {
			return d, d, d, func(ctx context.Context) {
				if err := d.Close(ctx); err != nil {
					logger.Error("docker runner close error", "error", err)
				}
			}
		}
		logger.Warn("docker unavailable, falling back to local runner")
	}
	l := runner.NewLocal(cfg.Runner.WorkDir, cfg.Runner.BuildCommand, cfg.Runner.TestCommand)
	return l, l, l, nil
}
