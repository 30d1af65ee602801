/*
Package cli provides command-line interface utilities for Mercator Throttle.

The cli package includes output formatters, a progress reporter, signal
helpers and the typed errors that map to exit codes for the throttle
command.

Output Formatting:

Results print as text, JSON or CSV. Values implementing Table render as
aligned columns in text and as rows in CSV:

	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, records); err != nil {
		return err
	}

Progress Reporting:

The bench command shows offered load on stderr:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(totalRequests)
	progress.Update(sent)
	progress.SetStatus("granted=950 denied=50")
	progress.Finish()

Signal Handling:

SIGINT and SIGTERM cancel the returned context; SIGHUP requests a
configuration reload:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
	for range cli.ReloadSignals(ctx) {
		// reload
	}

Exit Codes:

ExitCode maps command errors to process exit codes. Configuration and
validation errors exit with 2, everything else with 1.
*/
package cli
