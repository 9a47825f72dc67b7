package cli

// ExitCode carries the process exit code a subcommand's RunE determined
//, since cobra itself only distinguishes "error or not".
// main sets os.Exit(ExitCode) after RootCmd.Execute returns.
var ExitCode int
