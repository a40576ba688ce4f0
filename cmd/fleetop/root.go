package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/fleetop/internal/emitter"
	"github.com/yairfalse/fleetop/pkg/instance"
)

var version = "0.1.0"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath   string
	region       string
	profile      string
	keyID        string
	accessKey    string
	sessionToken string
	attempts     int
	interval     time.Duration
	output       string
	reportFile   string
	logFormat    string
	debug        bool
}

func newRootCmd(factory providerFactory) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "fleetop",
		Short: "Bulk EC2 lifecycle operations",
		Long: `fleetop - bulk EC2 lifecycle operations

Start, stop, reboot or terminate a set of EC2 instances and block until
every instance reports the expected state, or the poll budget runs out.

The final state of the instances is printed as a report on stdout.
Exit status is 0 on success, 2 when the instances did not settle in time,
and 1 on any other failure.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(`fleetop {{.Version}}
`)

	budget := instance.DefaultPollBudget()
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to TOML config file")
	pf.StringVar(&flags.region, "region", "", "AWS region")
	pf.StringVar(&flags.profile, "profile", "", "AWS shared config profile")
	pf.StringVar(&flags.keyID, "key-id", "", "AWS access key id")
	pf.StringVar(&flags.accessKey, "access-key", "", "AWS secret access key")
	pf.StringVar(&flags.sessionToken, "session-token", "", "AWS session token")
	pf.IntVar(&flags.attempts, "attempts", budget.MaxAttempts, "Maximum number of state polls")
	pf.DurationVar(&flags.interval, "interval", budget.Interval, "Delay between state polls")
	pf.StringVarP(&flags.output, "output", "o", emitter.FormatJSON, "Report format (json, yaml)")
	pf.StringVar(&flags.reportFile, "report-file", "", "Also write the report to this file")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format (console, json)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	for _, op := range instance.Operations() {
		rootCmd.AddCommand(newLifecycleCmd(op, flags, factory))
	}
	rootCmd.AddCommand(newDescribeCmd(flags, factory))

	return rootCmd
}
