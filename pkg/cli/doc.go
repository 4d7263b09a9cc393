/*
Package cli provides the helpers shared by the courier commands.

Output Formatting:

Command results are printed as text, JSON or CSV. Results that implement
Table render as aligned columns in text mode and as rows in CSV mode:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, results); err != nil {
		return err
	}

Progress Reporting:

Probe runs over many services report progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr, "services")
	progress.Start(len(services))
	// from any goroutine
	progress.Increment()
	progress.Finish()

Errors and Exit Codes:

ConfigError, CommandError and UnhealthyError carry the exit code of the
process (see ExitCode).

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
