package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/fleetop/internal/config"
	"github.com/yairfalse/fleetop/internal/emitter"
	"github.com/yairfalse/fleetop/internal/fleet"
	"github.com/yairfalse/fleetop/internal/provider/aws"
	"github.com/yairfalse/fleetop/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

type providerFactory func(ctx context.Context, cfg config.AWSConfig) (fleet.Provider, error)

func defaultProviderFactory(ctx context.Context, cfg config.AWSConfig) (fleet.Provider, error) {
	return aws.New(ctx, aws.Config{
		Region:          cfg.Region,
		Profile:         cfg.Profile,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
	})
}

// app is the wired core for one command invocation.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Provider
	reader    *fleet.Reader
	operator  *fleet.Operator
	builder   *fleet.ReportBuilder
	emitter   emitter.Emitter
}

// runCommand loads configuration, wires the core and runs fn until it
// returns or the process receives SIGINT/SIGTERM.
func runCommand(cmd *cobra.Command, flags *globalFlags, factory providerFactory, fn func(context.Context, *app) error) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	if err := setupLogging(cmd.ErrOrStderr(), cfg.Log, flags.debug); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, flags, factory, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	var g run.Group
	g.Add(func() error {
		ctx, span := a.telemetry.StartSpan(ctx, "fleetop."+cmd.Name())
		defer span.End()
		return fn(ctx, a)
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	runErr := g.Run()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown failed")
	}

	return runErr
}

func newApp(ctx context.Context, cfg *config.Config, flags *globalFlags, factory providerFactory, stdout io.Writer) (*app, error) {
	tel, err := telemetry.NewProvider(ctx, cfg.OTEL, cfg.Prometheus)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	emit, err := newEmitter(cfg, flags, tel, stdout)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	provider, err := factory(ctx, cfg.AWS)
	if err != nil {
		_ = emit.Close()
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("create provider: %w", err)
	}

	opts := []fleet.Option{
		fleet.WithLogger(log.Logger),
		fleet.WithRecorder(tel),
		fleet.WithTracer(tel.Tracer()),
	}
	reader := fleet.NewReader(provider, opts...)
	monitor := fleet.NewMonitor(reader, opts...)
	operator, err := fleet.NewOperator(provider, monitor, cfg.Budget(), opts...)
	if err != nil {
		_ = emit.Close()
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:       cfg,
		telemetry: tel,
		reader:    reader,
		operator:  operator,
		builder:   fleet.NewReportBuilder(reader),
		emitter:   emit,
	}, nil
}

func newEmitter(cfg *config.Config, flags *globalFlags, tel *telemetry.Provider, stdout io.Writer) (emitter.Emitter, error) {
	out, err := emitter.NewWriter(stdout, flags.output)
	if err != nil {
		return nil, err
	}
	emitters := []emitter.Emitter{out}

	if flags.reportFile != "" {
		file, err := emitter.NewFile(flags.reportFile, flags.output)
		if err != nil {
			return nil, err
		}
		emitters = append(emitters, file)
	}

	if cfg.Prometheus.Pushgateway != "" {
		gauge, err := emitter.NewMetricsEmitter(tel.Meter())
		if err != nil {
			return nil, fmt.Errorf("create metrics emitter: %w", err)
		}
		emitters = append(emitters, gauge)
	}

	return emitter.NewMultiEmitter(emitters...), nil
}

// close pushes and flushes telemetry before the emitters are closed, so the
// last report is still observable at push time.
func (a *app) close(ctx context.Context) error {
	return errors.Join(a.telemetry.Shutdown(ctx), a.emitter.Close())
}

func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("region") {
		cfg.AWS.Region = flags.region
	}
	if changed("profile") {
		cfg.AWS.Profile = flags.profile
	}
	if changed("key-id") {
		cfg.AWS.AccessKeyID = flags.keyID
	}
	if changed("access-key") {
		cfg.AWS.SecretAccessKey = flags.accessKey
	}
	if changed("session-token") {
		cfg.AWS.SessionToken = flags.sessionToken
	}
	if changed("attempts") {
		cfg.Poll.Attempts = flags.attempts
	}
	if changed("interval") {
		cfg.Poll.Interval = flags.interval
		cfg.Poll.IntervalStr = flags.interval.String()
	}
	if changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setupLogging(w io.Writer, cfg config.LogConfig, debug bool) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = telemetry.NewLogger(w, cfg.Format != "json")
	return nil
}
