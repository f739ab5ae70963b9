package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/spf13/pflag"

	"github.com/CristiGvl/picoGPUMon/api"
	"github.com/CristiGvl/picoGPUMon/internal/config"
	"github.com/CristiGvl/picoGPUMon/internal/gpu"
	"github.com/CristiGvl/picoGPUMon/internal/gpu/amd"
	"github.com/CristiGvl/picoGPUMon/internal/gpu/intel"
	"github.com/CristiGvl/picoGPUMon/internal/gpu/nvidia"
	"github.com/CristiGvl/picoGPUMon/internal/observability"
	"github.com/CristiGvl/picoGPUMon/internal/platform"
	"github.com/CristiGvl/picoGPUMon/internal/telemetry"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Parse command line flags
	flags := pflag.NewFlagSet("picogpumon", pflag.ContinueOnError)
	bind := flags.String("bind", "", "IP address to bind the server to (default 0.0.0.0)")
	port := flags.Int("port", 0, "Port to run the server on (default 8080)")
	configPath := flags.String("config", "", "Path to a YAML config file")
	skipNVML := flags.Bool("skip-nvml", false, "Do not load the NVIDIA management library")
	once := flags.Bool("once", false, "Read every GPU once, print a table and exit")
	logLevel := flags.String("log-level", "", "Log level: debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if flags.Changed("bind") {
		cfg.Bind = *bind
	}
	if flags.Changed("port") {
		cfg.Port = *port
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if *skipNVML {
		cfg.DisableNVML = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	setupLogger(cfg, *once)

	// Validate platform support
	if err := platform.ValidateSupport(); err != nil {
		slog.Error("platform validation failed", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	nv := nvidia.New(nvidiaOptions(cfg)...)
	enumerator := gpu.NewEnumerator(
		gpu.WithSysfsRoot(cfg.SysfsRoot),
		gpu.WithPCILookup(&gpu.LSPCI{Path: cfg.LSPCIPath, Timeout: cfg.LSPCITimeout}),
	)
	service := telemetry.NewService(enumerator, []gpu.Backend{nv, amd.New(), intel.New()})
	defer func() {
		if err := service.Close(); err != nil {
			slog.Warn("error closing backends", "error", err)
		}
	}()

	if *once {
		snap := telemetry.NewPoller(service, telemetry.WithInstanceID(cfg.InstanceID)).Poll(ctx)
		if err := writeProbe(os.Stdout, snap, nv.Info()); err != nil {
			slog.Error("failed to write probe output", "error", err)
			return 1
		}
		return 0
	}

	metrics := observability.NewMetrics()
	metrics.SetInfo(cfg.InstanceID, version)
	metrics.SetNVMLState(nv.State().String(), stateNames()...)

	poller := telemetry.NewPoller(service,
		telemetry.WithInterval(cfg.PollInterval),
		telemetry.WithRescanInterval(cfg.RescanInterval),
		telemetry.WithInstanceID(cfg.InstanceID),
		telemetry.WithObserver(metrics),
	)

	server, err := api.NewServer(api.Config{
		Service:    service,
		Poller:     poller,
		Metrics:    metrics,
		NVML:       nv,
		InstanceID: cfg.InstanceID,
		Version:    version,
		AccessLog:  cfg.LogLevel == "debug",
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return 1
	}

	slog.Info("picoGPUMon starting",
		"version", version,
		"instance_id", cfg.InstanceID,
		"address", cfg.Address(),
		"poll_interval", cfg.PollInterval,
		"nvml", nv.State().String(),
	)

	poller.Start(ctx)
	syncCtx, syncCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := poller.WaitForSync(syncCtx); err != nil {
		slog.Warn("first poll did not complete", "error", err)
	}
	syncCancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.Address())
	}()

	// Handle graceful shutdown
	code := 0
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		slog.Error("server stopped", "error", err)
		code = 1
	}

	if err := server.Shutdown(); err != nil {
		slog.Warn("error during shutdown", "error", err)
	}
	poller.Stop()
	metrics.SetNVMLState(nvidia.StateShutdown.String(), stateNames()...)
	return code
}

func nvidiaOptions(cfg config.Config) []nvidia.Option {
	opts := []nvidia.Option{nvidia.WithDisabled(cfg.DisableNVML)}
	if cfg.NVMLLibrary != "" {
		opts = append(opts, nvidia.WithLibraryPath(cfg.NVMLLibrary))
	}
	return opts
}

func stateNames() []string {
	names := make([]string, 0, len(nvidia.States))
	for _, s := range nvidia.States {
		names = append(names, s.String())
	}
	return names
}

// setupLogger installs the default slog handler. Probe mode logs to stderr
// at warn level unless debug was requested, keeping stdout for the table.
func setupLogger(cfg config.Config, probe bool) {
	level, _ := cfg.SlogLevel()
	if probe && level > slog.LevelDebug {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
