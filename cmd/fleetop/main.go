// fleetop - bulk EC2 lifecycle operations that wait for the fleet to settle.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oklog/run"

	"github.com/yairfalse/fleetop/internal/fleet"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitTimeout = 2
	exitSignal  = 130
)

func main() {
	os.Exit(Execute(context.Background(), os.Args[1:]))
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	cmd := newRootCmd(defaultProviderFactory)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var sigErr run.SignalError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, fleet.ErrConvergenceTimeout):
		return exitTimeout
	case errors.As(err, &sigErr):
		return exitSignal
	default:
		return exitError
	}
}
