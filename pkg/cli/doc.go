/*
Package cli provides command-line interface utilities shared by the
guardrails command.

Output Formatting:

Commands that print structured results (executions, simulate, policy
version) support text and JSON output through a common formatter:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Signal Handling:

The run command blocks on WaitForShutdown and shuts the server down
gracefully when SIGINT or SIGTERM arrives. One-shot commands that may run
for a while (sweep) use SetupSignalHandler to get a context cancelled on
the same signals:

	ctx := cli.SetupSignalHandler()
	summary, err := sweeper.Sweep(ctx)

Errors:

ConfigError and CommandError distinguish "your configuration is wrong"
from "the command itself failed" in top-level error output. CommandError
wraps its cause, so errors.Is and errors.As see through it.
*/
package cli
