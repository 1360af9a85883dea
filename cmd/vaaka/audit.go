package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yairfalse/vaaka/checks"
	"github.com/yairfalse/vaaka/config"
	"github.com/yairfalse/vaaka/cost"
	"github.com/yairfalse/vaaka/discovery"
	"github.com/yairfalse/vaaka/internal/emitter"
	"github.com/yairfalse/vaaka/journal"
	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/orchestrator"
	"github.com/yairfalse/vaaka/policy"
	"github.com/yairfalse/vaaka/providers/aws"
	"github.com/yairfalse/vaaka/storage"
	"github.com/yairfalse/vaaka/telemetry"
)

// AuditCommand implements the 'vaaka audit' command
type AuditCommand struct {
	Output         string
	FailOnCritical bool
}

// Run executes one audit sweep and renders the result.
func (cmd *AuditCommand) Run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := telemetry.NewLogger("vaaka")

	shutdownTelemetry := initTelemetry(ctx, cfg, logger)
	defer shutdownTelemetry()

	pipe, err := buildPipeline(ctx, cfg, "manual", false, logger)
	if err != nil {
		return err
	}
	defer pipe.Close()

	orch, err := orchestrator.New(pipe.Deps)
	if err != nil {
		return err
	}

	run, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	if err := renderRun(os.Stdout, run, cmd.Output, nil); err != nil {
		return err
	}

	if cmd.FailOnCritical {
		if crit := run.CriticalCount(); crit > 0 {
			return fmt.Errorf("%d unwaived critical issue(s) found", crit)
		}
	}
	return nil
}

// pipeline carries the orchestrator deps plus everything the command
// must close when it is done.
type pipeline struct {
	Deps orchestrator.Deps

	store    *storage.Store
	jrnl     *journal.Journal
	emitters []emitter.Emitter
}

func (p *pipeline) Close() {
	for _, e := range p.emitters {
		_ = e.Close()
	}
	if p.jrnl != nil {
		_ = p.jrnl.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

// buildPipeline assembles the full audit stack from config. With
// serveMetrics the Prometheus emitter joins the sinks; only daemon
// mode has a /metrics endpoint to scrape it from.
func buildPipeline(ctx context.Context, cfg *config.Config, trigger string, serveMetrics bool, logger *telemetry.Logger) (*pipeline, error) {
	clients, err := aws.NewClients(ctx, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws clients: %w", err)
	}

	agg := metrics.NewCloudWatchAggregator(clients.CloudWatch)

	auditMetrics, err := telemetry.InitAuditMetrics(telemetry.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to init audit metrics: %w", err)
	}

	registry := checks.NewRegistry(checks.Deps{
		Fetcher:    clients,
		Aggregator: agg,
		Logger:     logger,
		Metrics:    auditMetrics,
		WindowDays: cfg.Audit.WindowDays,
		Parallel:   cfg.Audit.ParallelChecks,
	})

	pol := discovery.NewPolicy(cfg.Discovery.IncludeTestPrefixes, cfg.Discovery.IncludeYoung)
	if cfg.Discovery.MinAgeDays > 0 {
		pol.MinAge = cfg.Discovery.MinAge()
	}

	var waivers *policy.Engine
	if cfg.Waivers.BundleDir != "" {
		waivers = policy.NewEngine(logger)
		loader := policy.NewLoader(cfg.Waivers.BundleDir, waivers, logger)
		if err := loader.LoadBundle(ctx); err != nil {
			return nil, fmt.Errorf("failed to load waiver bundle: %w", err)
		}
	}

	p := &pipeline{}

	store, err := storage.NewStore(cfg.Storage.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	p.store = store

	jrnl, err := journal.Open(cfg.Journal.Dir)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	p.jrnl = jrnl

	p.emitters = append(p.emitters, emitter.NewLogEmitter(logger))
	if serveMetrics {
		prom, err := emitter.NewPrometheusEmitter()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to create prometheus emitter: %w", err)
		}
		p.emitters = append(p.emitters, prom)
	}
	if cfg.Emitters.WebhookURL != "" {
		hook, err := emitter.NewWebhookEmitter(emitter.WebhookConfig{URL: cfg.Emitters.WebhookURL})
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to create webhook emitter: %w", err)
		}
		p.emitters = append(p.emitters, hook)
	}

	p.Deps = orchestrator.Deps{
		Discoverer: discovery.NewDiscoverer(clients, pol, logger),
		Fetcher:    clients,
		Registry:   registry,
		Aggregator: agg,
		Estimators: cost.NewDefaultRegistry(agg, cfg.Audit.WindowDays),
		Waivers:    waivers,
		Store:      store,
		Journal:    jrnl,
		Emitters:   p.emitters,
		Metrics:    auditMetrics,
		Logger:     logger,
		Region:     cfg.Region,
		Trigger:    trigger,
		Workers:    cfg.Audit.Workers,
		WindowDays: cfg.Audit.WindowDays,
	}

	return p, nil
}
