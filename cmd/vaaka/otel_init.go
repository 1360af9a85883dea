package main

import (
	"context"
	"os"
	"time"

	"github.com/yairfalse/vaaka/config"
	"github.com/yairfalse/vaaka/telemetry"
)

// initTelemetry wires OTEL export when a collector endpoint is
// configured. Without one the instruments stay no-ops and the run
// proceeds normally.
func initTelemetry(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) func() {
	endpoint := cfg.OTEL.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return func() {}
	}

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "vaaka",
		ServiceVersion: version,
		Environment:    os.Getenv("VAAKA_ENVIRONMENT"),
		OTELEndpoint:   endpoint,
		Insecure:       cfg.OTEL.Insecure,
	})
	if err != nil {
		// Export is optional; the audit itself must not depend on a
		// reachable collector.
		logger.Warn().Err(err).Msg("telemetry init failed, continuing without export")
		return func() {}
	}

	logger.Info().Str("endpoint", endpoint).Msg("telemetry export enabled")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}
}
