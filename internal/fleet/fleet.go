// Package fleet applies lifecycle operations to a set of instances and waits
// until every instance reports the operation's target state.
//
// The flow is Operator -> Monitor -> Reader -> Provider. The Operator fires the
// command once, the Monitor polls the Reader on a fixed budget, and the
// ReportBuilder turns the final state into records. Nothing here retries a
// failed provider call.
package fleet

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/fleetop/pkg/instance"
)

const tracerName = "github.com/yairfalse/fleetop/internal/fleet"

// Provider is the cloud capability the core depends on.
type Provider interface {
	// DescribeInstances returns the instances matching ids. Unknown ids may
	// be omitted from the result.
	DescribeInstances(ctx context.Context, ids []instance.ID) ([]instance.Raw, error)

	// DescribeAllInstances returns every instance visible to the provider.
	DescribeAllInstances(ctx context.Context) ([]instance.Raw, error)

	// ApplyLifecycleOperation requests the state transition and returns
	// without waiting for it.
	ApplyLifecycleOperation(ctx context.Context, op instance.Operation, ids []instance.ID) error
}

// Outcome labels for Recorder.RecordOutcome.
const (
	OutcomeConverged = "converged"
	OutcomeTimedOut  = "timed_out"
	OutcomeError     = "error"
)

// Recorder receives operational measurements from the core.
type Recorder interface {
	RecordPoll(ctx context.Context, target instance.State, attempt int)
	RecordOutcome(ctx context.Context, op instance.Operation, outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordPoll(context.Context, instance.State, int) {}

func (nopRecorder) RecordOutcome(context.Context, instance.Operation, string, time.Duration) {}

// Option configures the core components.
type Option func(*options)

type options struct {
	logger   zerolog.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// WithLogger sets the logger. Defaults to the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder sets the metrics recorder. Defaults to a no-op.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithTracer sets the tracer. Defaults to the global OTEL tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   log.Logger,
		recorder: nopRecorder{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
