package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newDescribeCmd(flags *globalFlags, factory providerFactory) *cobra.Command {
	scope := &scopeFlags{}

	cmd := &cobra.Command{
		Use:   "describe [instance-id...]",
		Short: "Report instance state without changing it",
		Example: `  fleetop describe --region us-east-1 i-0abc
  fleetop describe --region us-east-1 --all -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, flags, factory, func(ctx context.Context, a *app) error {
				ids, err := a.reader.Resolve(ctx, scope.ids(args), scope.all)
				if err != nil {
					return err
				}
				records, err := a.builder.Build(ctx, ids)
				if err != nil {
					return err
				}
				return a.emitter.Emit(ctx, records)
			})
		},
	}
	scope.register(cmd)
	return cmd
}
