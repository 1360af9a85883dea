package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the daemon's operational metrics using OTEL semantic
// conventions.
type Metrics struct {
	sweeps        metric.Int64Counter
	sweepDuration metric.Float64Histogram
	journalPrunes metric.Int64Counter
}

// NewMetrics creates daemon metrics following OTEL semantic conventions.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter("vaaka.daemon"))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	sweeps, err := meter.Int64Counter(
		"vaaka.daemon.sweeps",
		metric.WithDescription("Number of audit sweeps run"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, err
	}

	sweepDuration, err := meter.Float64Histogram(
		"vaaka.daemon.sweep.duration",
		metric.WithDescription("Duration of audit sweeps"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	journalPrunes, err := meter.Int64Counter(
		"vaaka.daemon.journal.files_pruned",
		metric.WithDescription("Journal files removed by retention pruning"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sweeps:        sweeps,
		sweepDuration: sweepDuration,
		journalPrunes: journalPrunes,
	}, nil
}

// RecordSweep records one sweep with its outcome.
func (m *Metrics) RecordSweep(ctx context.Context, status string, durationSeconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.sweeps.Add(ctx, 1, attrs)
	m.sweepDuration.Record(ctx, durationSeconds, attrs)
}

// RecordJournalPrune records journal files removed by retention.
func (m *Metrics) RecordJournalPrune(ctx context.Context, files int) {
	m.journalPrunes.Add(ctx, int64(files))
}
