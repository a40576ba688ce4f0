package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/fleetop/pkg/instance"
)

// Operator issues lifecycle commands and waits for them to take effect.
type Operator struct {
	provider Provider
	monitor  *Monitor
	budget   instance.PollBudget
	log      zerolog.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// NewOperator creates an Operator that fires commands at p and waits with m
// under budget.
func NewOperator(p Provider, m *Monitor, budget instance.PollBudget, opts ...Option) (*Operator, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &Operator{
		provider: p,
		monitor:  m,
		budget:   budget,
		log:      o.logger,
		recorder: o.recorder,
		tracer:   o.tracer,
	}, nil
}

// Apply fires op at ids once and waits for them to reach op's target state.
// A timed-out wait is not an error: the Result reports it. The command is
// never rolled back.
func (o *Operator) Apply(ctx context.Context, op instance.Operation, ids []instance.ID) (Result, error) {
	target, ok := op.Target()
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidOperation, op)
	}
	ids = instance.UniqueIDs(ids)
	if len(ids) == 0 {
		return Result{Target: target}, ErrEmptyTargetSet
	}

	ctx, span := o.tracer.Start(ctx, "fleet.apply", trace.WithAttributes(
		attribute.String("fleet.operation", string(op)),
		attribute.String("fleet.target", string(target)),
		attribute.StringSlice("fleet.instance_ids", instance.IDStrings(ids)),
	))
	defer span.End()

	start := time.Now()
	o.log.Info().Ctx(ctx).
		Str("operation", string(op)).
		Strs("instance_ids", instance.IDStrings(ids)).
		Msg("performing operation")

	if err := o.provider.ApplyLifecycleOperation(ctx, op, ids); err != nil {
		perr := newProviderError(string(op), ids, err)
		o.fail(ctx, span, op, start, perr)
		return Result{Target: target}, perr
	}

	result, err := o.monitor.WaitFor(ctx, ids, target, o.budget)
	if err != nil {
		o.fail(ctx, span, op, start, err)
		return result, err
	}

	outcome := OutcomeConverged
	if !result.Converged {
		outcome = OutcomeTimedOut
		span.SetStatus(codes.Error, "convergence timeout")
	}
	span.SetAttributes(
		attribute.Int("fleet.attempts", result.Attempts),
		attribute.String("fleet.outcome", outcome),
	)
	o.recorder.RecordOutcome(ctx, op, outcome, time.Since(start))
	return result, nil
}

func (o *Operator) fail(ctx context.Context, span trace.Span, op instance.Operation, start time.Time, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.recorder.RecordOutcome(ctx, op, OutcomeError, time.Since(start))
}
