package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shortcut-sage/internal/telemetry"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Database string

	// Now overrides the report timestamp (for testing).
	Now func() time.Time
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts, Now: time.Now}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Summarize recorded telemetry",
		Long: `Print a report over the daemon's telemetry database: event counts per
type, average processing durations, the covered time range, errors,
detected issues and suggested follow-ups.

Examples:
  shortcut-sage audit
  shortcut-sage audit --db ./telemetry.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", defaultDatabasePath(), "path to the telemetry SQLite database")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// OpenStore would create a missing database.
	if _, err := os.Stat(opts.Database); err != nil {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("telemetry database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "telemetry database not found", err)
	}

	store, err := telemetry.OpenStore(opts.Database)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open telemetry database", err)
	}
	defer store.Close()

	report, err := telemetry.Audit(cmdContext(cmd), store, opts.Now())
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read telemetry", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(report)
	}
	fmt.Fprintln(formatter.Writer, report.Text())
	return nil
}
