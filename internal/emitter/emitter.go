// Package emitter defines the output sinks for finished audit runs.
package emitter

import (
	"context"

	"github.com/yairfalse/vaaka/types"
)

// Emitter pushes one finished audit run to a backend.
type Emitter interface {
	// Emit sends the run to the backend.
	Emit(ctx context.Context, run *types.RunResult) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, run *types.RunResult) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}
