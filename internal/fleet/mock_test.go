package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/fleetop/pkg/instance"
)

// mockProvider implements Provider for testing.
type mockProvider struct {
	DescribeInstancesFunc    func(ctx context.Context, ids []instance.ID) ([]instance.Raw, error)
	DescribeAllInstancesFunc func(ctx context.Context) ([]instance.Raw, error)
	ApplyFunc                func(ctx context.Context, op instance.Operation, ids []instance.ID) error

	describeCalls    int
	describeAllCalls int
	applyCalls       int
	applied          []instance.Operation
}

func (m *mockProvider) DescribeInstances(ctx context.Context, ids []instance.ID) ([]instance.Raw, error) {
	m.describeCalls++
	if m.DescribeInstancesFunc != nil {
		return m.DescribeInstancesFunc(ctx, ids)
	}
	return nil, nil
}

func (m *mockProvider) DescribeAllInstances(ctx context.Context) ([]instance.Raw, error) {
	m.describeAllCalls++
	if m.DescribeAllInstancesFunc != nil {
		return m.DescribeAllInstancesFunc(ctx)
	}
	return nil, nil
}

func (m *mockProvider) ApplyLifecycleOperation(ctx context.Context, op instance.Operation, ids []instance.ID) error {
	m.applyCalls++
	m.applied = append(m.applied, op)
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, op, ids)
	}
	return nil
}

// scripted returns a describe func that replays polls in order and repeats
// the last one once exhausted.
func scripted(polls ...map[instance.ID]instance.State) func(context.Context, []instance.ID) ([]instance.Raw, error) {
	n := 0
	return func(_ context.Context, _ []instance.ID) ([]instance.Raw, error) {
		poll := polls[len(polls)-1]
		if n < len(polls) {
			poll = polls[n]
		}
		n++
		raws := make([]instance.Raw, 0, len(poll))
		for id, st := range poll {
			raws = append(raws, instance.Raw{ID: id, State: st})
		}
		return raws, nil
	}
}

// mockRecorder implements Recorder for testing.
type mockRecorder struct {
	mu       sync.Mutex
	polls    []int
	outcomes []string
}

func (r *mockRecorder) RecordPoll(_ context.Context, _ instance.State, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, attempt)
}

func (r *mockRecorder) RecordOutcome(_ context.Context, _ instance.Operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func quiet() Option {
	return WithLogger(zerolog.Nop())
}

// newTestMonitor returns a monitor whose sleeps are counted instead of taken.
func newTestMonitor(p Provider, rec Recorder) (*Monitor, *int) {
	sleeps := 0
	m := NewMonitor(NewReader(p, quiet()), quiet(), WithRecorder(rec))
	m.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		return ctx.Err()
	}
	return m, &sleeps
}
