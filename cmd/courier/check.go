package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/courier/pkg/cli"
	"mercator-hq/courier/pkg/restclient"
	"mercator-hq/courier/pkg/telemetry/tracing"
)

type checkOptions struct {
	services []string
	path     string
	output   string
	progress bool
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the endpoints of the configured services",
		Long: `Probe every configured service once. The endpoints of a service are
tried in order until one answers the health path with a success status.

The command exits with status 3 when any service has no healthy endpoint.

Examples:
  # Probe every service on the configured health path
  courier check

  # Probe two services on a custom path
  courier check --service billing --service orders#eu --path /health

  # Machine readable results
  courier check --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, root, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.services, "service", "s", nil, "service to probe as name or name#discriminator (repeatable)")
	cmd.Flags().StringVarP(&opts.path, "path", "p", "", "health path (default: monitor.health_path)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text, json, csv")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "report progress on stderr")

	return cmd
}

func runCheck(cmd *cobra.Command, root *rootOptions, opts *checkOptions) error {
	format, err := cli.ParseOutputFormat(opts.output)
	if err != nil {
		return err
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, appOptions{logWriter: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	svcs, err := a.services(opts.services)
	if err != nil {
		return cli.NewCommandError("check", err)
	}

	path := opts.path
	if path == "" {
		path = cfg.Monitor.HealthPath
	}

	probeOpts := []restclient.ProbeOption{
		restclient.WithHealthPath(path),
		restclient.WithConcurrency(cfg.Monitor.Concurrency),
		restclient.WithProbeLogger(a.logger.Slog()),
		restclient.WithObserver(a.collector.ObserveProbe),
	}
	var progress cli.ProgressReporter
	if opts.progress {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "services")
		progress.Start(len(svcs))
		probeOpts = append(probeOpts, restclient.WithObserver(func(restclient.ProbeResult) {
			progress.Increment()
		}))
	}

	ctx, span := a.tracer.Start(cmd.Context(), "check",
		trace.WithAttributes(
			attribute.String(tracing.AttrProbePath, path),
			attribute.Int("courier.services", len(svcs)),
		))
	results := restclient.NewProbe(a.cache, probeOpts...).ProbeAll(ctx, svcs)
	if progress != nil {
		progress.Finish()
	}

	report := newCheckReport(results)
	unhealthy := 0
	for _, r := range report {
		if !r.Healthy {
			unhealthy++
		}
	}
	var checkErr error
	if unhealthy > 0 {
		checkErr = &cli.UnhealthyError{Unhealthy: unhealthy, Total: len(report)}
	}
	tracing.SetStatus(span, checkErr)
	span.End()

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	return checkErr
}

// checkResult is the printable outcome of one service probe.
type checkResult struct {
	Service    string `json:"service"`
	Path       string `json:"path"`
	Healthy    bool   `json:"healthy"`
	Endpoint   string `json:"endpoint,omitempty"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type checkReport []checkResult

func newCheckReport(results []restclient.ProbeResult) checkReport {
	report := make(checkReport, 0, len(results))
	for _, r := range results {
		cr := checkResult{
			Service:    r.Service.String(),
			Path:       r.Path,
			Healthy:    r.Healthy(),
			Endpoint:   r.Endpoint(),
			Attempts:   len(r.Endpoints),
			DurationMS: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			cr.Error = r.Err.Error()
		}
		report = append(report, cr)
	}
	return report
}

func (checkReport) Header() []string {
	return []string{"SERVICE", "STATUS", "ENDPOINT", "ATTEMPTS", "DURATION", "ERROR"}
}

func (r checkReport) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, c := range r {
		status := "healthy"
		if !c.Healthy {
			status = "unavailable"
		}
		rows = append(rows, []string{
			c.Service,
			status,
			orDash(c.Endpoint),
			strconv.Itoa(c.Attempts),
			(time.Duration(c.DurationMS) * time.Millisecond).String(),
			orDash(c.Error),
		})
	}
	return rows
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
