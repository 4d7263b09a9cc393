package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/courier/pkg/cli"
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/monitor"
	"mercator-hq/courier/pkg/security/auth"
	"mercator-hq/courier/pkg/server"
	"mercator-hq/courier/pkg/telemetry/health"
)

type monitorOptions struct {
	listenAddress string
	schedule      string
	noWatch       bool
}

func newMonitorCmd(root *rootOptions) *cobra.Command {
	opts := &monitorOptions{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Probe services on a schedule and serve metrics and health",
		Long: `Run the failover probe on the configured cron schedule, record the
results in the probe history and serve:

  /metrics        Prometheus metrics
  /health/live    liveness
  /health/ready   readiness (503 when a service has no healthy endpoint)
  /version        build information

The configuration file is watched; services and proxy routes added to it
are registered without a restart.

Examples:
  # Run with the configured schedule
  courier monitor

  # Probe every 10 seconds on another address
  courier monitor --schedule "@every 10s" --listen 0.0.0.0:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "override probe schedule")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not reload the configuration file on change")

	return cmd
}

func runMonitor(cmd *cobra.Command, root *rootOptions, opts *monitorOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	if opts.listenAddress != "" {
		cfg.Monitor.ListenAddress = opts.listenAddress
	}
	if opts.schedule != "" {
		if _, err := config.ParseSchedule(opts.schedule); err != nil {
			return cli.NewConfigError("monitor.schedule", err.Error())
		}
		cfg.Monitor.Schedule = opts.schedule
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := newApp(cfg, appOptions{processMetrics: true, logWriter: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	log := a.logger.Slog()

	mc := cfg.Monitor
	checker := health.New(0, mc.StaleAfter)
	checker.RegisterCheck("registry", func(context.Context) error {
		if len(a.registry.Services()) == 0 {
			return errors.New("no services registered")
		}
		return nil
	})

	monOpts := []monitor.Option{
		monitor.WithMetrics(a.collector),
		monitor.WithTracer(a.tracer),
		monitor.WithLogger(log),
	}
	if mc.History.Enabled {
		history, err := monitor.OpenHistory(monitor.HistoryConfig{
			Driver: mc.History.Driver,
			Path:   mc.History.Path,
		}, log)
		if err != nil {
			return cli.NewCommandError("monitor", err)
		}
		defer history.Close()
		monOpts = append(monOpts, monitor.WithHistory(history))
	}
	// WithHealth registers the history check, so it follows WithHistory.
	monOpts = append(monOpts, monitor.WithHealth(checker))

	mon := monitor.New(monitor.Config{
		Schedule:          mc.Schedule,
		HealthPath:        mc.HealthPath,
		Concurrency:       mc.Concurrency,
		Retention:         mc.History.Retention,
		RetentionSchedule: mc.History.RetentionSchedule,
	}, a.registry, a.cache, monOpts...)

	a.keyring, err = auth.NewKeyring(apiKeys(cfg))
	if err != nil {
		return cli.NewConfigError("monitor.api_keys", err.Error())
	}

	srvOpts := []server.Option{
		server.WithHealth(checker, health.NewVersionInfo(Version, GitCommit, BuildDate)),
		server.WithAuth(a.keyring),
		server.WithTracer(a.tracer),
		server.WithLogger(log),
	}
	if cfg.Telemetry.Metrics.Enabled {
		srvOpts = append(srvOpts, server.WithMetrics(a.collector))
	}
	srv := server.New(server.Config{
		ListenAddress:   mc.ListenAddress,
		MetricsPath:     cfg.Telemetry.Metrics.Path,
		ShutdownTimeout: mc.ShutdownTimeout,
	}, srvOpts...)
	if err := srv.Listen(); err != nil {
		return cli.NewCommandError("monitor", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if !opts.noWatch {
		watcher, err := config.NewWatcher(root.configPath, config.DefaultDebounceInterval, log)
		if err != nil {
			log.Warn("configuration watching disabled", "error", err)
		} else {
			g.Go(func() error {
				defer watcher.Stop()
				return watcher.Watch(gctx, a.reload)
			})
		}
	}

	if err := mon.Start(gctx); err != nil {
		stop()
		_ = g.Wait()
		return cli.NewConfigError("monitor.schedule", err.Error())
	}
	defer mon.Stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Monitoring %d services, serving on %s\n", len(a.registry.Services()), srv.Addr())
	if next := mon.NextRun(); !next.IsZero() {
		log.Info("next probe run scheduled", "next_run", next)
	}

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("monitor", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "✓ Monitor stopped")
	return nil
}
