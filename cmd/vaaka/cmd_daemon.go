package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vaaka/internal/daemon"
	"github.com/yairfalse/vaaka/orchestrator"
	"github.com/yairfalse/vaaka/telemetry"
)

var (
	daemonInterval    time.Duration
	daemonMetricsAddr string
	daemonStorePath   string
	daemonJournalDir  string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Audit the fleet continuously",
	Long: `Run Vaaka in daemon mode for continuous fleet auditing.

The daemon sweeps the fleet at the configured interval, persists every
run to the history store and serves operational endpoints:

- Prometheus metrics on /metrics
- Health checks on /health, /-/healthy, /-/ready
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  vaaka daemon                        # Sweep hourly, metrics on :9090
  vaaka daemon --interval 15m         # Sweep every 15 minutes
  vaaka daemon --metrics-addr :2112   # Custom metrics address`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Sweep interval (overrides config)")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", "", "Metrics server address (overrides config)")
	daemonCmd.Flags().StringVar(&daemonStorePath, "store", "", "History store directory (overrides config)")
	daemonCmd.Flags().StringVar(&daemonJournalDir, "journal-dir", "", "Journal directory (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if daemonInterval > 0 {
		cfg.Daemon.Interval = daemonInterval
	}
	if daemonMetricsAddr != "" {
		cfg.Daemon.MetricsAddr = daemonMetricsAddr
	}
	if daemonStorePath != "" {
		cfg.Storage.Path = daemonStorePath
	}
	if daemonJournalDir != "" {
		cfg.Journal.Dir = daemonJournalDir
	}

	ctx := context.Background()
	logger := telemetry.NewLogger("vaaka")

	shutdownTelemetry := initTelemetry(ctx, cfg, logger)
	defer shutdownTelemetry()

	pipe, err := buildPipeline(ctx, cfg, "scheduled", true, logger)
	if err != nil {
		return err
	}
	defer pipe.Close()

	orch, err := orchestrator.New(pipe.Deps)
	if err != nil {
		return err
	}

	d, err := daemon.NewDaemon(daemon.Config{
		Interval:    cfg.Daemon.Interval,
		MetricsAddr: cfg.Daemon.MetricsAddr,
		JournalDir:  cfg.Journal.Dir,
		JournalKeep: cfg.Journal.KeepFiles,
	}, orch, logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run(ctx)
}
