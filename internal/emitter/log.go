package emitter

import (
	"context"

	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

// LogEmitter writes the run summary and every critical finding to the
// structured log. It is the default sink for one-shot runs.
type LogEmitter struct {
	logger *telemetry.Logger
}

// NewLogEmitter creates a log emitter.
func NewLogEmitter(logger *telemetry.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit logs the run summary plus one line per critical issue.
func (e *LogEmitter) Emit(ctx context.Context, run *types.RunResult) error {
	summary := run.Summary

	e.logger.WithContext(ctx).Info().
		Str("run_id", summary.RunID).
		Str("region", summary.Region).
		Int("discovered", summary.Discovered).
		Int("audited", summary.Audited).
		Int("failed", summary.Failed).
		Int("issues", run.TotalIssues()).
		Int("critical", run.CriticalCount()).
		Float64("mean_score", summary.MeanScore).
		Float64("monthly_cost_usd", summary.TotalMonthlyCost).
		Dur("duration", summary.Duration()).
		Msg("audit run complete")

	for _, result := range run.Results {
		for _, iss := range result.Issues {
			if !iss.IsCritical() {
				continue
			}
			e.logger.WithContext(ctx).Warn().
				Str("lb", result.Name).
				Str("arn", result.ARN).
				Str("issue", iss.Type).
				Str("category", string(iss.Category)).
				Str("description", iss.Description).
				Msg("critical issue")
		}
	}

	return nil
}

// Close is a no-op for the log emitter.
func (e *LogEmitter) Close() error {
	return nil
}
