package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/shortcut-sage/internal/config"
	"github.com/roach88/shortcut-sage/internal/rules"
	"github.com/roach88/shortcut-sage/internal/shortcut"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Version   string `json:"version"`
	Rules     int    `json:"rules"`
	Shortcuts int    `json:"shortcuts"`
	// Unmapped lists suggested actions with no shortcuts.yaml entry. They
	// are still suggested, without a key binding.
	Unmapped []string `json:"unmapped,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-dir>",
		Short: "Validate rules.yaml and shortcuts.yaml",
		Long: `Validate the rule and shortcut configuration without starting the daemon.

Both files are decoded strictly (unknown fields are errors) and checked
against the configuration schema. Suggested actions that have no
shortcut entry are reported as warnings.

Exit codes:
  0 - Configuration valid
  1 - Configuration invalid
  2 - Configuration file not found`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	formatter.VerboseLog("Loading configuration from %s", dir)
	cfg, err := config.Load(dir)
	if err != nil {
		return outputValidateError(formatter, err)
	}

	result := ValidationResult{
		Valid:     true,
		Version:   cfg.Rules.Version(),
		Rules:     cfg.Rules.Len(),
		Shortcuts: len(cfg.Shortcuts),
		Unmapped:  unmappedActions(cfg.Rules, shortcut.NewTable(cfg.Shortcuts)),
	}
	for _, r := range cfg.Rules.Rules() {
		formatter.VerboseLog("Rule %s: %s %v (window %d, cooldown %s)",
			r.Name, r.Context.Type, []string(r.Context.Pattern), r.Context.EffectiveWindow(), r.Cooldown)
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, action := range result.Unmapped {
		fmt.Fprintf(w, "⚠ action %q has no shortcut entry\n", action)
	}
	fmt.Fprintf(w, "✓ Configuration valid: %d rule(s), %d shortcut(s)\n", result.Rules, result.Shortcuts)
	return nil
}

// unmappedActions returns suggested actions missing from table, in rule
// declaration order without duplicates.
func unmappedActions(set *rules.RuleSet, table *shortcut.Table) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range set.Rules() {
		for _, s := range r.Suggest {
			if seen[s.Action] {
				continue
			}
			seen[s.Action] = true
			if _, ok := table.Lookup(s.Action); !ok {
				out = append(out, s.Action)
			}
		}
	}
	return out
}

func outputValidateError(formatter *OutputFormatter, err error) error {
	code := ErrorCode(err)

	var details map[string]string
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		details = map[string]string{"file": cfgErr.File}
		if cfgErr.Field != "" {
			details["field"] = cfgErr.Field
		}
	}

	if fmtErr := formatter.Error(code, err.Error(), details); fmtErr != nil {
		return fmtErr
	}

	exit := ExitFailure
	if config.IsNotFound(err) {
		exit = ExitCommandError
	}
	return WrapExitError(exit, fmt.Sprintf("validation failed [%s]", code), err)
}
