package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/fleetop/internal/fleet"
	"github.com/yairfalse/fleetop/pkg/instance"
)

// scopeFlags select the instances a command acts on.
type scopeFlags struct {
	instanceIDs []string
	all         bool
}

func (s *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&s.instanceIDs, "instance-id", "i", nil, "Instance ids (repeatable or comma separated)")
	cmd.Flags().BoolVar(&s.all, "all", false, "Act on every instance in the region")
}

// ids merges --instance-id values with positional arguments.
func (s *scopeFlags) ids(args []string) []instance.ID {
	var ids []instance.ID
	for _, id := range append(append([]string{}, s.instanceIDs...), args...) {
		ids = append(ids, instance.ID(strings.TrimSpace(id)))
	}
	return ids
}

var lifecycleShort = map[instance.Operation]string{
	instance.OpStart:     "Start instances and wait until they are running",
	instance.OpStop:      "Stop instances and wait until they are stopped",
	instance.OpReboot:    "Reboot instances and wait until they are running",
	instance.OpTerminate: "Terminate instances and wait until they are terminated",
}

func newLifecycleCmd(op instance.Operation, flags *globalFlags, factory providerFactory) *cobra.Command {
	scope := &scopeFlags{}

	cmd := &cobra.Command{
		Use:   string(op) + " [instance-id...]",
		Short: lifecycleShort[op],
		Example: fmt.Sprintf(`  fleetop %[1]s --region us-east-1 i-0abc i-0def
  fleetop %[1]s --region us-east-1 --instance-id i-0abc,i-0def --attempts 20
  fleetop %[1]s --config fleetop.toml --all`, op),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, flags, factory, func(ctx context.Context, a *app) error {
				return runLifecycle(ctx, a, op, scope.ids(args), scope.all)
			})
		},
	}
	scope.register(cmd)
	return cmd
}

func runLifecycle(ctx context.Context, a *app, op instance.Operation, ids []instance.ID, all bool) error {
	ids, err := a.reader.Resolve(ctx, ids, all)
	if err != nil {
		return err
	}

	result, err := a.operator.Apply(ctx, op, ids)
	if err != nil {
		return err
	}

	if err := report(ctx, a, ids); err != nil {
		if result.Converged {
			return err
		}
		log.Warn().Err(err).Msg("could not report instances after timeout")
	}

	if !result.Converged {
		pending := result.Snapshot.Pending(ids, result.Target)
		return fmt.Errorf("%w: %d of %d instances not %s after %d attempts: %s",
			fleet.ErrConvergenceTimeout,
			len(pending), len(ids), result.Target, result.Attempts,
			strings.Join(instance.IDStrings(pending), ","))
	}

	log.Info().Str("operation", string(op)).Int("instances", len(ids)).Msg("execution completed")
	return nil
}

func report(ctx context.Context, a *app, ids []instance.ID) error {
	records, err := a.builder.Build(ctx, ids)
	if err != nil {
		return err
	}
	return a.emitter.Emit(ctx, records)
}
