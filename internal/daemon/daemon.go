// Package daemon runs audit sweeps on an interval and serves the
// metrics and health endpoints.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yairfalse/vaaka/journal"
	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

// Auditor runs one audit sweep over the fleet.
type Auditor interface {
	Run(ctx context.Context) (*types.RunResult, error)
}

// Config holds daemon configuration.
type Config struct {
	Interval    time.Duration
	MetricsAddr string
	JournalDir  string // empty disables journal pruning
	JournalKeep int
}

// Daemon drives continuous audits.
type Daemon struct {
	auditor Auditor
	logger  *telemetry.Logger
	metrics *Metrics

	interval    time.Duration
	metricsAddr string
	journalDir  string
	journalKeep int

	startTime  time.Time
	sweepCount atomic.Int64
	ready      atomic.Bool

	mu        sync.RWMutex
	boundAddr string
	lastRun   *types.RunSummary
}

// NewDaemon creates a daemon around an auditor.
func NewDaemon(cfg Config, auditor Auditor, logger *telemetry.Logger) (*Daemon, error) {
	if auditor == nil {
		return nil, fmt.Errorf("auditor required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, err
	}

	return &Daemon{
		auditor:     auditor,
		logger:      logger,
		metrics:     metrics,
		interval:    cfg.Interval,
		metricsAddr: cfg.MetricsAddr,
		journalDir:  cfg.JournalDir,
		journalKeep: cfg.JournalKeep,
		startTime:   time.Now(),
	}, nil
}

// Run blocks until a signal arrives, the context is canceled, or an
// actor fails.
func (d *Daemon) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", d.metricsAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.metricsAddr, err)
	}

	d.mu.Lock()
	d.boundAddr = lis.Addr().String()
	d.mu.Unlock()

	var g run.Group

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	srv := &http.Server{
		Handler:           d.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Add(func() error {
		d.logger.Info().Str("addr", lis.Addr().String()).Msg("starting metrics server")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	loopCtx, cancelLoop := context.WithCancel(ctx)
	g.Add(func() error {
		return d.sweepLoop(loopCtx)
	}, func(error) {
		cancelLoop()
	})

	d.logger.Info().
		Dur("interval", d.interval).
		Str("metrics_addr", d.metricsAddr).
		Msg("daemon starting")

	err = g.Run()

	var sig run.SignalError
	if errors.As(err, &sig) {
		d.logger.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sweepLoop audits immediately, then on every tick.
func (d *Daemon) sweepLoop(ctx context.Context) error {
	d.sweep(ctx)
	d.ready.Store(true)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Daemon) sweep(ctx context.Context) {
	d.sweepCount.Add(1)
	start := time.Now()

	result, err := d.auditor.Run(ctx)
	duration := time.Since(start)
	if err != nil {
		d.metrics.RecordSweep(ctx, "failed", duration.Seconds())
		d.logger.WithContext(ctx).Error().Err(err).Msg("audit sweep failed")
		return
	}

	d.metrics.RecordSweep(ctx, "ok", duration.Seconds())

	d.mu.Lock()
	summary := result.Summary
	d.lastRun = &summary
	d.mu.Unlock()

	d.pruneJournal(ctx)
}

func (d *Daemon) pruneJournal(ctx context.Context) {
	if d.journalDir == "" {
		return
	}

	removed, err := journal.Prune(d.journalDir, d.journalKeep)
	if err != nil {
		d.logger.WithContext(ctx).Warn().Err(err).Msg("journal prune failed")
		return
	}
	if removed > 0 {
		d.metrics.RecordJournalPrune(ctx, removed)
		d.logger.WithContext(ctx).Debug().Int("files", removed).Msg("journal pruned")
	}
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metricsHandler())
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/-/healthy", d.handleHealthy)
	mux.HandleFunc("/-/ready", d.handleReady)
	return mux
}

// metricsHandler serves the dual-export Prometheus registry when OTEL
// is initialized, the default registry otherwise.
func (d *Daemon) metricsHandler() http.Handler {
	if telemetry.PrometheusRegistry != nil {
		return promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.Health())
}

func (d *Daemon) handleHealthy(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (d *Daemon) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !d.ready.Load() {
		http.Error(w, "first sweep pending", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HealthStatus reports daemon liveness details.
type HealthStatus struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Sweeps        int64     `json:"sweeps"`
	LastRunID     string    `json:"last_run_id,omitempty"`
	LastMeanScore float64   `json:"last_mean_score,omitempty"`
	LastFinished  time.Time `json:"last_finished,omitempty"`
}

// Health returns daemon health status.
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	health := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(d.startTime).Seconds()),
		Sweeps:        d.sweepCount.Load(),
	}
	if d.lastRun != nil {
		health.LastRunID = d.lastRun.RunID
		health.LastMeanScore = d.lastRun.MeanScore
		health.LastFinished = d.lastRun.FinishedAt
	}
	return health
}

// SweepCount returns total sweeps run.
func (d *Daemon) SweepCount() int64 {
	return d.sweepCount.Load()
}

// MetricsAddr returns the bound metrics listener address, empty before
// Run starts listening.
func (d *Daemon) MetricsAddr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.boundAddr
}
