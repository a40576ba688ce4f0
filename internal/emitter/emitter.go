// Package emitter writes instance reports to their destinations.
package emitter

import (
	"context"

	"github.com/yairfalse/fleetop/pkg/instance"
)

// Emitter outputs an instance report.
type Emitter interface {
	// Emit writes the records.
	Emit(ctx context.Context, records []instance.Record) error

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
func (m *MultiEmitter) Emit(ctx context.Context, records []instance.Record) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, records); err != nil {
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
