package instance

import (
	"fmt"
	"strings"
	"time"
)

// Operation is a lifecycle command applied to a set of instances.
type Operation string

const (
	OpStart     Operation = "start"
	OpStop      Operation = "stop"
	OpReboot    Operation = "reboot"
	OpTerminate Operation = "terminate"
)

// targets is fixed; it is not configurable.
var targets = map[Operation]State{
	OpStart:     StateRunning,
	OpStop:      StateStopped,
	OpReboot:    StateRunning,
	OpTerminate: StateTerminated,
}

// Operations lists every supported operation in display order.
func Operations() []Operation {
	return []Operation{OpStart, OpStop, OpReboot, OpTerminate}
}

// Target returns the state an operation converges to.
func (o Operation) Target() (State, bool) {
	s, ok := targets[o]
	return s, ok
}

// Valid reports whether o is a supported operation.
func (o Operation) Valid() bool {
	_, ok := targets[o]
	return ok
}

// ParseOperation parses an operation name, ignoring case and surrounding space.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return op, nil
}

// PollBudget bounds a convergence wait to at most MaxAttempts reads spaced
// Interval apart.
type PollBudget struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPollBudget is ten reads, ten seconds apart.
func DefaultPollBudget() PollBudget {
	return PollBudget{MaxAttempts: 10, Interval: 10 * time.Second}
}

// Validate checks the budget bounds.
func (b PollBudget) Validate() error {
	if b.MaxAttempts < 1 {
		return fmt.Errorf("poll budget: max attempts must be at least 1 (got %d)", b.MaxAttempts)
	}
	if b.Interval < 0 {
		return fmt.Errorf("poll budget: interval must not be negative (got %s)", b.Interval)
	}
	return nil
}

// MaxWait is the upper bound on time spent sleeping between reads.
func (b PollBudget) MaxWait() time.Duration {
	if b.MaxAttempts < 1 {
		return 0
	}
	return time.Duration(b.MaxAttempts-1) * b.Interval
}
