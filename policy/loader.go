package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vaaka/telemetry"
)

// Loader reads every .rego file under a bundle directory into an
// Engine. Policy names come from file names, so two files with the
// same base name overwrite each other.
type Loader struct {
	bundleDir string
	engine    *Engine
	logger    *telemetry.Logger
	tracer    trace.Tracer
}

// NewLoader creates a loader for the given bundle directory.
func NewLoader(bundleDir string, engine *Engine, logger *telemetry.Logger) *Loader {
	return &Loader{
		bundleDir: bundleDir,
		engine:    engine,
		logger:    logger,
		tracer:    otel.Tracer("policy"),
	}
}

// LoadBundle walks the bundle directory and loads each .rego file.
func (l *Loader) LoadBundle(ctx context.Context) error {
	ctx, span := l.tracer.Start(ctx, "load_waiver_bundle",
		trace.WithAttributes(attribute.String("bundle_dir", l.bundleDir)))
	defer span.End()

	if _, err := os.Stat(l.bundleDir); os.IsNotExist(err) {
		return fmt.Errorf("waiver bundle dir does not exist: %s", l.bundleDir)
	}

	loaded := 0
	err := filepath.Walk(l.bundleDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		if err := l.loadFile(ctx, path); err != nil {
			return err
		}
		loaded++
		return nil
	})
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("policies.loaded", loaded))
	l.logger.WithContext(ctx).Info().
		Str("bundle_dir", l.bundleDir).
		Int("policies", loaded).
		Msg("waiver bundle loaded")
	return nil
}

func (l *Loader) loadFile(ctx context.Context, path string) error {
	if err := l.validatePath(path); err != nil {
		return fmt.Errorf("invalid policy path %s: %w", path, err)
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".rego")
	if err := l.engine.LoadPolicy(ctx, name, string(content)); err != nil {
		return fmt.Errorf("failed to load policy from %s: %w", path, err)
	}
	return nil
}

// validatePath rejects paths that escape the bundle directory.
func (l *Loader) validatePath(path string) error {
	rel, err := filepath.Rel(filepath.Clean(l.bundleDir), filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected")
	}
	return nil
}
