package telemetry

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTELHook_Run(t *testing.T) {
	tests := getOTELHookTestCases()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runOTELHookTest(t, tt)
		})
	}
}

// getOTELHookTestCases returns test cases for OTEL hook
func getOTELHookTestCases() []struct {
	name        string
	setupCtx    func() context.Context
	expectTrace bool
	expectSpan  bool
} {
	return []struct {
		name        string
		setupCtx    func() context.Context
		expectTrace bool
		expectSpan  bool
	}{
		{
			name: "no context",
			setupCtx: func() context.Context {
				return nil
			},
			expectTrace: false,
			expectSpan:  false,
		},
		{
			name: "context without span",
			setupCtx: func() context.Context {
				return context.Background()
			},
			expectTrace: false,
			expectSpan:  false,
		},
		{
			name: "context with valid span",
			setupCtx: func() context.Context {
				return createContextWithSpan()
			},
			expectTrace: true,
			expectSpan:  true,
		},
	}
}

// createContextWithSpan creates a context with tracing span
func createContextWithSpan() context.Context {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	tracer := provider.Tracer("test")
	ctx, _ := tracer.Start(context.Background(), "test-span")
	return ctx
}

// runOTELHookTest executes a single OTEL hook test
func runOTELHookTest(t *testing.T, tt struct {
	name        string
	setupCtx    func() context.Context
	expectTrace bool
	expectSpan  bool
}) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	hook := OTELHook{}
	event := logger.Info().Ctx(tt.setupCtx())

	hook.Run(event, zerolog.InfoLevel, "test message")
	event.Msg("test")

	verifyOTELOutput(t, buf.String(), tt.expectTrace, tt.expectSpan)
}

// verifyOTELOutput checks if output contains expected trace/span IDs
func verifyOTELOutput(t *testing.T, output string, expectTrace, expectSpan bool) {
	if expectTrace {
		assert.Contains(t, output, "trace_id")
	} else {
		assert.NotContains(t, output, "trace_id")
	}

	if expectSpan {
		assert.Contains(t, output, "span_id")
	} else {
		assert.NotContains(t, output, "span_id")
	}
}

func TestOTELHook_ErrorLevel(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	tracer := provider.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	hook := OTELHook{}
	event := logger.Error().Ctx(ctx)

	hook.Run(event, zerolog.ErrorLevel, "error message")
	event.Msg("test error")

	// Verify span status was set to error
	span.End()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "error message", spans[0].Status.Description)
}

func TestNewLogger(t *testing.T) {
	// Redirect stdout to capture output
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	logger := NewLogger("test-service")

	// Write a test message
	logger.Info().Msg("test message")

	// Close writer and restore stdout
	_ = w.Close()
	os.Stdout = oldStdout

	// Read captured output
	buf := make([]byte, 1024)
	n, _ := r.Read(buf)
	output := string(buf[:n])

	assert.NotNil(t, logger)
	assert.Contains(t, output, "test-service")
	assert.Contains(t, output, "test message")
}

func TestLogger_WithContext(t *testing.T) {
	logger := NewLogger("test-service")
	ctx := context.Background()

	contextLogger := logger.WithContext(ctx)
	assert.NotNil(t, contextLogger)
}

func TestLogger_LogSpanStart(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}
	ctx := context.Background()

	attrs := []attribute.KeyValue{
		attribute.String("test.key", "test.value"),
		attribute.Int("test.count", 42),
	}

	logger.LogSpanStart(ctx, "test-span", attrs...)

	output := buf.String()
	assert.Contains(t, output, "span started")
	assert.Contains(t, output, "test-span")
	assert.Contains(t, output, "test.value")
	assert.Contains(t, output, "42")
}

func TestLogger_LogSpanEnd(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		expectError bool
		expectDebug bool
	}{
		{
			name:        "successful span",
			err:         nil,
			expectError: false,
			expectDebug: true,
		},
		{
			name:        "failed span",
			err:         assert.AnError,
			expectError: true,
			expectDebug: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := &Logger{Logger: zerolog.New(&buf)}
			ctx := context.Background()

			logger.LogSpanEnd(ctx, "test-span", tt.err)

			output := buf.String()
			assert.Contains(t, output, "test-span")

			if tt.expectError {
				assert.Contains(t, output, "span failed")
				assert.Contains(t, output, "level\":\"error")
			} else {
				assert.Contains(t, output, "span completed")
				assert.Contains(t, output, "level\":\"debug")
			}
		})
	}
}

func TestAddAttributeToEvent(t *testing.T) {
	tests := []struct {
		name     string
		attr     attribute.KeyValue
		expected string
	}{
		{
			name:     "string attribute",
			attr:     attribute.String("key", "value"),
			expected: "\"key\":\"value\"",
		},
		{
			name:     "int64 attribute",
			attr:     attribute.Int64("count", 42),
			expected: "\"count\":42",
		},
		{
			name:     "float64 attribute",
			attr:     attribute.Float64("rate", 3.14),
			expected: "\"rate\":3.14",
		},
		{
			name:     "bool attribute",
			attr:     attribute.Bool("enabled", true),
			expected: "\"enabled\":true",
		},
		{
			name:     "int attribute (converted to int64)",
			attr:     attribute.Int("size", 100),
			expected: "\"size\":100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			event := logger.Info()

			event = addAttributeToEvent(event, tt.attr)
			event.Msg("test")

			output := buf.String()
			assert.Contains(t, output, tt.expected)
		})
	}
}

func TestLogger_AuditMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}
	ctx := context.Background()

	// Test LogResourceSkipped
	logger.LogResourceSkipped(ctx, "test-alb", "excluded_by_tag")
	assert.Contains(t, buf.String(), "resource excluded from audit")
	assert.Contains(t, buf.String(), "test-alb")
	assert.Contains(t, buf.String(), "excluded_by_tag")

	buf.Reset()

	// Test LogCheckError
	logger.LogCheckError(ctx, "target_health", "arn:aws:elasticloadbalancing:us-east-1:123456789012:loadbalancer/app/web/abc", assert.AnError)
	assert.Contains(t, buf.String(), "check failed")
	assert.Contains(t, buf.String(), "target_health")
	assert.Contains(t, buf.String(), "level\":\"error")

	buf.Reset()

	// Test LogResourceFailed
	logger.LogResourceFailed(ctx, "broken-nlb", assert.AnError)
	assert.Contains(t, buf.String(), "resource audit failed")
	assert.Contains(t, buf.String(), "broken-nlb")

	buf.Reset()

	// Test LogRunComplete
	logger.LogRunComplete(ctx, 12, 1, 34, 87.5, 2*time.Second)
	assert.Contains(t, buf.String(), "audit run completed")
	assert.Contains(t, buf.String(), "12")
	assert.Contains(t, buf.String(), "87.5")
}

func TestLogger_StorageMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}
	ctx := context.Background()

	// Test LogCompaction
	logger.LogCompaction(ctx, 100, 200)
	assert.Contains(t, buf.String(), "starting compaction")
	assert.Contains(t, buf.String(), "100")
	assert.Contains(t, buf.String(), "200")

	buf.Reset()

	// Test LogCompactionComplete
	logger.LogCompactionComplete(ctx, 50, 1234.56)
	assert.Contains(t, buf.String(), "compaction completed")
	assert.Contains(t, buf.String(), "50")
	assert.Contains(t, buf.String(), "1234.56")

	buf.Reset()

	// Test LogRebuildIndex
	logger.LogRebuildIndex(ctx, 1000)
	assert.Contains(t, buf.String(), "fleet index rebuilt")
	assert.Contains(t, buf.String(), "1000")

	buf.Reset()

	// Test LogStorageError
	err := assert.AnError
	logger.LogStorageError(ctx, "record_run", err)
	assert.Contains(t, buf.String(), "storage operation failed")
	assert.Contains(t, buf.String(), "record_run")
	assert.Contains(t, buf.String(), "level\":\"error")
}

func TestConfig_Defaults(t *testing.T) {
	// Clear environment variables
	oldEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	defer func() {
		if oldEndpoint != "" {
			_ = os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", oldEndpoint)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	cfg := Config{}

	// InitOTEL should succeed even without OTLP endpoint (Prometheus exporter works)
	shutdown, err := InitOTEL(ctx, cfg)
	assert.NoError(t, err)
	assert.NotNil(t, shutdown)

	// Cleanup
	if shutdown != nil {
		_ = shutdown(ctx)
	}
}

func TestConfig_EnvironmentVariable(t *testing.T) {
	// Set environment variable
	testEndpoint := "test.example.com:4317"
	_ = os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", testEndpoint)
	defer func() { _ = os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT") }()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	cfg := Config{}

	// InitOTEL should succeed with env var endpoint
	shutdown, err := InitOTEL(ctx, cfg)
	assert.NoError(t, err)
	assert.NotNil(t, shutdown)

	// Cleanup
	if shutdown != nil {
		_ = shutdown(ctx)
	}
}

func TestInitMetrics(t *testing.T) {
	// Create a test meter provider
	provider := metric.NewMeterProvider()
	otel.SetMeterProvider(provider)
	Meter = provider.Meter("test")

	err := initMetrics()
	assert.NoError(t, err)

	// Verify metrics were created
	assert.NotNil(t, LBsAudited)
	assert.NotNil(t, IssuesFound)
	assert.NotNil(t, ChecksFailed)
	assert.NotNil(t, AuditDuration)
	assert.NotNil(t, FleetScore)
}

func TestServiceNameDefault(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	cfg := Config{
		OTELEndpoint: "localhost:4317",
		Insecure:     true,
	}

	// InitOTEL should succeed and use default service name
	shutdown, err := InitOTEL(ctx, cfg)
	assert.NoError(t, err)
	assert.NotNil(t, shutdown)

	// Cleanup
	if shutdown != nil {
		_ = shutdown(ctx)
	}
}

func TestGlobalMetricsInitialization(t *testing.T) {
	// Test that global metrics are properly declared
	assert.NotNil(t, LBsAudited)
	assert.NotNil(t, IssuesFound)
	assert.NotNil(t, ChecksFailed)
	assert.NotNil(t, AuditDuration)
	assert.NotNil(t, FleetScore)
}

func TestOTELInitShutdown(t *testing.T) {
	// Test with minimal config to avoid actual connection
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cfg := Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTELEndpoint:   "localhost:4317",
		Insecure:       true,
	}

	// InitOTEL should succeed (Prometheus exporter doesn't need server)
	shutdown, err := InitOTEL(ctx, cfg)
	assert.NoError(t, err)

	// Even on failure, if we got a shutdown function, test it
	if shutdown != nil {
		shutdownErr := shutdown(context.Background())
		// Shutdown error is acceptable since init failed
		_ = shutdownErr
	}
}

func TestSetupTraceProvider_Success(t *testing.T) {
	// Test successful setup without actual connection
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cfg := Config{
		OTELEndpoint: "localhost:4317",
		Insecure:     true,
	}

	res := resource.Default()
	shutdown, err := setupTraceProvider(ctx, cfg, res)

	// The function might succeed in creating the provider even without a server
	if err == nil {
		assert.NotNil(t, shutdown)
		// Clean up
		if shutdown != nil {
			_ = shutdown(ctx)
		}
	} else {
		// Or it might fail due to connection issues, which is also acceptable
		assert.Error(t, err)
	}
}

func TestSetupMetricProvider_Success(t *testing.T) {
	// Test successful setup without actual connection
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cfg := Config{
		OTELEndpoint: "localhost:4317",
		Insecure:     true,
	}

	res := resource.Default()
	shutdown, err := setupMetricProvider(ctx, cfg, res)

	// The function might succeed in creating the provider even without a server
	if err == nil {
		assert.NotNil(t, shutdown)
		// Clean up
		if shutdown != nil {
			_ = shutdown(ctx)
		}
	} else {
		// Or it might fail due to connection issues, which is also acceptable
		assert.Error(t, err)
	}
}

func TestInitOTEL_ShortTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()

	cfg := Config{
		ServiceName:  "test",
		OTELEndpoint: "localhost:4317",
		Insecure:     true,
	}

	shutdown, err := InitOTEL(ctx, cfg)
	// With very short timeout, this might succeed or fail - just verify no panic
	if err == nil && shutdown != nil {
		_ = shutdown(context.Background())
	}
}

func TestMetricRecording(t *testing.T) {
	// Setup test providers
	metricProvider := metric.NewMeterProvider()
	otel.SetMeterProvider(metricProvider)
	Meter = metricProvider.Meter("test")

	// Initialize metrics
	err := initMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	// Test counter recording
	LBsAudited.Add(ctx, 25)
	IssuesFound.Add(ctx, 10)
	ChecksFailed.Add(ctx, 1)

	// Test histogram recording
	AuditDuration.Record(ctx, 1.5)

	// Test gauge recording
	FleetScore.Record(ctx, 87.5)

	// If we get here without panicking, metrics are working
	assert.NotNil(t, LBsAudited)
}
