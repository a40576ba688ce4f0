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

// Result is the outcome of a convergence wait.
type Result struct {
	// Converged is true when every requested id reached Target.
	Converged bool
	Target    instance.State
	// Snapshot is the converged snapshot, or the last one observed.
	Snapshot instance.Snapshot
	// Attempts is the number of reads performed.
	Attempts int

	timedOut bool
}

// TimedOut reports whether every read in the budget was made and the
// instances never converged. A wait aborted by an error is not a timeout.
func (r Result) TimedOut() bool {
	return r.timedOut
}

// Monitor polls a Reader until a set of instances converges on one state.
// A Monitor holds no per-wait state and may serve concurrent waits.
type Monitor struct {
	reader   *Reader
	log      zerolog.Logger
	recorder Recorder
	tracer   trace.Tracer
	sleep    func(context.Context, time.Duration) error
}

// NewMonitor creates a Monitor that reads through r.
func NewMonitor(r *Reader, opts ...Option) *Monitor {
	o := newOptions(opts)
	return &Monitor{
		reader:   r,
		log:      o.logger,
		recorder: o.recorder,
		tracer:   o.tracer,
		sleep:    sleepContext,
	}
}

// WaitFor reads ids until all of them report target or budget.MaxAttempts
// reads have been made. Reads are strictly sequential and the only pause is
// budget.Interval between two reads. A provider error or context
// cancellation aborts the wait; the returned Result then carries the last
// snapshot seen.
func (m *Monitor) WaitFor(ctx context.Context, ids []instance.ID, target instance.State, budget instance.PollBudget) (Result, error) {
	result := Result{Target: target}
	if len(ids) == 0 {
		return result, ErrEmptyTargetSet
	}
	if err := budget.Validate(); err != nil {
		return result, err
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("wait for %s: %w", target, err)
		}

		snap, err := m.poll(ctx, ids, target, attempt)
		if err != nil {
			return result, err
		}
		result.Snapshot = snap
		result.Attempts = attempt

		if snap.AllIn(ids, target) {
			result.Converged = true
			m.log.Info().Ctx(ctx).
				Str("target", string(target)).
				Int("attempts", attempt).
				Msg("all instances reached target state")
			return result, nil
		}

		if attempt >= budget.MaxAttempts {
			result.timedOut = true
			m.log.Warn().Ctx(ctx).
				Str("target", string(target)).
				Int("attempts", attempt).
				Strs("pending", instance.IDStrings(snap.Pending(ids, target))).
				Interface("states", snap.Strings()).
				Msg("timeout waiting for target state")
			return result, nil
		}

		m.log.Info().Ctx(ctx).
			Str("target", string(target)).
			Int("attempt", attempt).
			Interface("states", snap.Strings()).
			Dur("next_in", budget.Interval).
			Msg("waiting")

		if err := m.sleep(ctx, budget.Interval); err != nil {
			return result, fmt.Errorf("wait for %s: %w", target, err)
		}
	}
}

func (m *Monitor) poll(ctx context.Context, ids []instance.ID, target instance.State, attempt int) (instance.Snapshot, error) {
	ctx, span := m.tracer.Start(ctx, "fleet.poll", trace.WithAttributes(
		attribute.String("fleet.target", string(target)),
		attribute.Int("fleet.attempt", attempt),
		attribute.Int("fleet.instances", len(ids)),
	))
	defer span.End()

	snap, err := m.reader.Read(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return instance.Snapshot{}, err
	}

	m.recorder.RecordPoll(ctx, target, attempt)
	span.SetAttributes(attribute.Int("fleet.reported", snap.Len()))
	return snap, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
