package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/fleetop/internal/config"
	"github.com/yairfalse/fleetop/internal/fleet"
	"github.com/yairfalse/fleetop/pkg/instance"
)

// fakeFleet is an in-memory provider. After a lifecycle call every touched
// instance passes through transitional for settleAfter describes before
// reaching the target state.
type fakeFleet struct {
	mu          sync.Mutex
	states      map[instance.ID]instance.State
	order       []instance.ID
	names       map[instance.ID]string
	pending     map[instance.ID]instance.State
	settleAfter int
	describes   int
	applied     []instance.Operation
	applyErr    error
}

func newFakeFleet(settleAfter int, ids ...instance.ID) *fakeFleet {
	f := &fakeFleet{
		states:      make(map[instance.ID]instance.State),
		names:       make(map[instance.ID]string),
		pending:     make(map[instance.ID]instance.State),
		settleAfter: settleAfter,
	}
	for _, id := range ids {
		f.states[id] = instance.StateRunning
		f.order = append(f.order, id)
	}
	return f
}

func (f *fakeFleet) raw(id instance.ID) instance.Raw {
	r := instance.Raw{ID: id, State: f.states[id], PrivateIP: "10.0.0.1"}
	if name, ok := f.names[id]; ok {
		r.Tags = []instance.Tag{{Key: "Name", Value: name}}
	}
	return r
}

func (f *fakeFleet) DescribeInstances(_ context.Context, ids []instance.ID) ([]instance.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.describes++
	if f.describes > f.settleAfter {
		for id, target := range f.pending {
			f.states[id] = target
			delete(f.pending, id)
		}
	}

	want := make(map[instance.ID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var raws []instance.Raw
	for _, id := range f.order {
		if want[id] {
			raws = append(raws, f.raw(id))
		}
	}
	return raws, nil
}

func (f *fakeFleet) DescribeAllInstances(_ context.Context) ([]instance.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raws := make([]instance.Raw, 0, len(f.order))
	for _, id := range f.order {
		raws = append(raws, f.raw(id))
	}
	return raws, nil
}

func (f *fakeFleet) ApplyLifecycleOperation(_ context.Context, op instance.Operation, ids []instance.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.applied = append(f.applied, op)
	if f.applyErr != nil {
		return f.applyErr
	}
	target, _ := op.Target()
	for _, id := range ids {
		f.states[id] = instance.StateStopping
		f.pending[id] = target
	}
	f.describes = 0
	return nil
}

func (f *fakeFleet) factory() providerFactory {
	return func(_ context.Context, _ config.AWSConfig) (fleet.Provider, error) {
		return f, nil
	}
}

func execute(t *testing.T, f *fakeFleet, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(f.factory())
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func decodeRecords(t *testing.T, out string) []instance.Record {
	t.Helper()
	var records []instance.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	return records
}

func TestStop_Converges(t *testing.T) {
	f := newFakeFleet(2, "i-1", "i-2")
	f.names["i-1"] = "web-1"

	out, err := execute(t, f, "stop", "--region", "us-east-1", "--interval", "0s", "--attempts", "5", "i-1", "i-2")

	require.NoError(t, err)
	assert.Equal(t, []instance.Operation{instance.OpStop}, f.applied)

	records := decodeRecords(t, out)
	require.Len(t, records, 2)
	assert.Equal(t, instance.Record{
		InstanceID: "i-1",
		Name:       "web-1",
		State:      "stopped",
		PrivateIP:  "10.0.0.1",
		PublicIP:   instance.NotAvailable,
	}, records[0])
	assert.Equal(t, instance.NotAvailable, records[1].Name)
}

func TestStop_TimesOut(t *testing.T) {
	f := newFakeFleet(10, "i-1")

	out, err := execute(t, f, "stop", "--region", "us-east-1", "--interval", "0s", "--attempts", "2", "--instance-id", "i-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, fleet.ErrConvergenceTimeout)
	assert.Equal(t, exitTimeout, exitCode(err))
	assert.Contains(t, err.Error(), "i-1")

	// the partial state is still reported
	records := decodeRecords(t, out)
	require.Len(t, records, 1)
	assert.Equal(t, "stopping", records[0].State)
}

func TestStart_All(t *testing.T) {
	f := newFakeFleet(0, "i-a", "i-b", "i-c")

	out, err := execute(t, f, "start", "--region", "us-east-1", "--interval", "0s", "--all")

	require.NoError(t, err)
	records := decodeRecords(t, out)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, "running", r.State)
	}
}

func TestStart_NoIDs(t *testing.T) {
	f := newFakeFleet(0)

	_, err := execute(t, f, "start", "--region", "us-east-1")

	require.ErrorIs(t, err, fleet.ErrEmptyTargetSet)
	assert.Equal(t, exitError, exitCode(err))
	assert.Empty(t, f.applied)
}

func TestTerminate_ProviderError(t *testing.T) {
	f := newFakeFleet(0, "i-1")
	f.applyErr = errors.New("UnauthorizedOperation")

	out, err := execute(t, f, "terminate", "--region", "us-east-1", "i-1")

	require.Error(t, err)
	assert.True(t, fleet.IsProviderError(err))
	assert.Empty(t, out)
}

func TestRegionRequired(t *testing.T) {
	f := newFakeFleet(0, "i-1")

	_, err := execute(t, f, "reboot", "i-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "region required")
}

func TestDescribe_YAML(t *testing.T) {
	f := newFakeFleet(0, "i-1", "i-2")

	out, err := execute(t, f, "describe", "--region", "us-east-1", "-o", "yaml", "i-2")

	require.NoError(t, err)
	assert.Contains(t, out, "InstanceId: i-2")
	assert.NotContains(t, out, "i-1")
	assert.Empty(t, f.applied)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetop.toml")
	content := `
[aws]
region = "ap-south-1"

[poll]
attempts = 1
interval = "0s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	f := newFakeFleet(5, "i-1")

	_, err := execute(t, f, "stop", "--config", path, "i-1")

	// a single attempt cannot observe the transition
	require.ErrorIs(t, err, fleet.ErrConvergenceTimeout)
}

func TestReportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	f := newFakeFleet(0, "i-1")

	_, err := execute(t, f, "describe", "--region", "us-east-1", "--report-file", path, "i-1")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, decodeRecords(t, string(data)), 1)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitTimeout, exitCode(fmt.Errorf("wrap: %w", fleet.ErrConvergenceTimeout)))
	assert.Equal(t, exitSignal, exitCode(run.SignalError{Signal: os.Interrupt}))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
}

// failingEmitter rejects every report.
type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, []instance.Record) error {
	return errors.New("disk full")
}

func (failingEmitter) Close() error { return nil }

func newTestApp(t *testing.T, f *fakeFleet, budget instance.PollBudget) *app {
	t.Helper()
	opts := []fleet.Option{fleet.WithLogger(zerolog.Nop())}
	reader := fleet.NewReader(f, opts...)
	operator, err := fleet.NewOperator(f, fleet.NewMonitor(reader, opts...), budget, opts...)
	require.NoError(t, err)
	return &app{
		reader:   reader,
		operator: operator,
		builder:  fleet.NewReportBuilder(reader),
		emitter:  failingEmitter{},
	}
}

func TestRunLifecycle_EmitFailureKeepsTimeout(t *testing.T) {
	f := newFakeFleet(10, "i-1")
	a := newTestApp(t, f, instance.PollBudget{MaxAttempts: 1})

	err := runLifecycle(context.Background(), a, instance.OpStop, []instance.ID{"i-1"}, false)

	require.ErrorIs(t, err, fleet.ErrConvergenceTimeout)
	assert.Equal(t, exitTimeout, exitCode(err))
}

func TestRunLifecycle_EmitFailureAfterConvergence(t *testing.T) {
	f := newFakeFleet(0, "i-1")
	a := newTestApp(t, f, instance.PollBudget{MaxAttempts: 3})

	err := runLifecycle(context.Background(), a, instance.OpStop, []instance.ID{"i-1"}, false)

	require.Error(t, err)
	assert.NotErrorIs(t, err, fleet.ErrConvergenceTimeout)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, exitError, exitCode(err))
}
