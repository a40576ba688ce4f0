package fleet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/yairfalse/fleetop/pkg/instance"
)

var (
	// ErrInvalidOperation is returned for an operation outside the supported set.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrEmptyTargetSet is returned when no instance ids were resolved.
	ErrEmptyTargetSet = errors.New("no instance ids resolved")

	// ErrConvergenceTimeout marks a run whose instances did not all reach
	// the target state within the poll budget. The core reports this as a
	// Result; callers that need an error wrap this sentinel.
	ErrConvergenceTimeout = errors.New("timed out waiting for instances")
)

// ProviderError wraps a failed provider call.
type ProviderError struct {
	// Op is the provider call that failed ("describe", "describe-all", or
	// a lifecycle operation name).
	Op string
	// IDs are the instance ids the call was made for, if any.
	IDs []instance.ID
	// Code is the provider's error code when one is available.
	Code string
	Err  error
}

func newProviderError(op string, ids []instance.ID, err error) *ProviderError {
	pe := &ProviderError{Op: op, IDs: ids, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe.Code = apiErr.ErrorCode()
	}
	return pe
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provider %s", e.Op)
	if len(e.IDs) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(instance.IDStrings(e.IDs), ","))
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err came from a provider call.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
