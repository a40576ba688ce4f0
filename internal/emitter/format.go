package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/fleetop/pkg/instance"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriterEmitter serializes records to an io.Writer.
type WriterEmitter struct {
	w      io.Writer
	format string
	closer io.Closer
}

// NewWriter creates an emitter for format writing to w.
func NewWriter(w io.Writer, format string) (*WriterEmitter, error) {
	switch format {
	case FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	return &WriterEmitter{w: w, format: format}, nil
}

// NewFile creates an emitter that writes to path, truncating it.
func NewFile(path, format string) (*WriterEmitter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}
	e, err := NewWriter(f, format)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	e.closer = f
	return e, nil
}

// Emit writes records as one document.
func (e *WriterEmitter) Emit(_ context.Context, records []instance.Record) error {
	if records == nil {
		records = []instance.Record{}
	}

	switch e.format {
	case FormatYAML:
		enc := yaml.NewEncoder(e.w)
		enc.SetIndent(4)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(e.w)
		enc.SetIndent("", "    ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

// Close closes the underlying file, if the emitter owns one.
func (e *WriterEmitter) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}
