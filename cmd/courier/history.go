package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
	"mercator-hq/courier/pkg/monitor"
)

type historyOptions struct {
	service string
	limit   int
	since   time.Duration
	output  string
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored probe results",
		Long: `Show the probe results recorded by the monitor, newest first.

Examples:
  # Last 100 results of every service
  courier history

  # Results of one service within the last hour
  courier history --service billing --since 1h

  # Export as CSV
  courier history --limit 1000 --output csv > probes.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.service, "service", "s", "", "service name or name#discriminator")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", monitor.DefaultQueryLimit, "maximum number of results")
	cmd.Flags().DurationVar(&opts.since, "since", 0, "only results newer than this duration")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text, json, csv")

	return cmd
}

func runHistory(cmd *cobra.Command, root *rootOptions, opts *historyOptions) error {
	format, err := cli.ParseOutputFormat(opts.output)
	if err != nil {
		return err
	}
	if opts.limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", opts.limit)
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	hc := cfg.Monitor.History
	if hc.Path == monitor.MemoryPath {
		return cli.NewConfigError("monitor.history.path", "in-memory history cannot be read by another process")
	}

	logger, err := newLogger(cfg.Telemetry.Logging, cmd.ErrOrStderr())
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	history, err := monitor.OpenHistory(monitor.HistoryConfig{Driver: hc.Driver, Path: hc.Path}, logger.Slog())
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	defer history.Close()

	q := monitor.Query{Service: opts.service, Limit: opts.limit}
	if opts.since > 0 {
		q.Since = time.Now().Add(-opts.since)
	}

	records, err := history.Query(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), historyTable(records))
}

type historyTable []monitor.Record

func (historyTable) Header() []string {
	return []string{"STARTED", "SERVICE", "STATUS", "ENDPOINT", "ATTEMPTS", "DURATION", "RUN"}
}

func (t historyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		status := "healthy"
		if !r.Healthy {
			status = "unavailable"
		}
		rows = append(rows, []string{
			r.Started.Local().Format(time.RFC3339),
			r.Label,
			status,
			orDash(r.Endpoint),
			strconv.Itoa(r.Attempts),
			r.Duration.Round(time.Millisecond).String(),
			r.RunID,
		})
	}
	return rows
}
