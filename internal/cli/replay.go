package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shortcut-sage/internal/buffer"
	"github.com/roach88/shortcut-sage/internal/event"
	"github.com/roach88/shortcut-sage/internal/pipeline"
	"github.com/roach88/shortcut-sage/internal/policy"
	"github.com/roach88/shortcut-sage/internal/shortcut"
)

// maxReplayLine bounds a single NDJSON line.
const maxReplayLine = 1 << 20

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Window time.Duration
	TopN   int
}

// ReplayEvent is the outcome of one replayed event.
type ReplayEvent struct {
	Line        int                 `json:"line"`
	Timestamp   time.Time           `json:"timestamp"`
	Action      string              `json:"action"`
	Matched     []string            `json:"matched_rules"`
	Suggestions []shortcut.Enriched `json:"suggestions"`
}

// ReplayRejection is an input line that failed to parse.
type ReplayRejection struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Events    []ReplayEvent     `json:"events"`
	Processed int               `json:"processed"`
	Suggested int               `json:"suggested"`
	Rejected  []ReplayRejection `json:"rejected,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <config-dir> <events.ndjson>",
		Short: "Replay recorded events through the pipeline",
		Long: `Replay a newline-delimited JSON event log offline.

Each line is one inbound event. Events are processed in file order, using
each event's own timestamp as the current time, so buffer pruning and
cooldowns behave exactly as they did live. Use "-" to read from stdin.

Exit codes:
  0 - All events processed
  1 - One or more lines were rejected
  2 - Command error (missing files, invalid configuration)

Examples:
  shortcut-sage replay ./config events.ndjson
  shortcut-sage replay ./config - --top-n 1 --format json < events.ndjson`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Window, "window", buffer.DefaultWindow, "event buffer retention window")
	cmd.Flags().IntVar(&opts.TopN, "top-n", policy.DefaultTopN, "maximum suggestions per event")

	return cmd
}

func runReplay(opts *ReplayOptions, configDir, eventsPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Replay output goes to stdout; pipeline logs only in verbose mode.
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	p, err := buildPipeline(configDir, opts.Window, opts.TopN, logger,
		pipeline.WithTraceIDs(pipeline.NewFixedGenerator()),
	)
	if err != nil {
		formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	in, closeIn, err := openInput(eventsPath, cmd.InOrStdin())
	if err != nil {
		formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	defer closeIn()

	result, err := replayEvents(p, in, formatter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event log", err)
	}

	if formatter.IsJSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		for _, rej := range result.Rejected {
			fmt.Fprintf(w, "✗ line %d: %s\n", rej.Line, rej.Message)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Replay Summary: %d processed, %d with suggestions, %d rejected\n",
			result.Processed, result.Suggested, len(result.Rejected))
	}

	if len(result.Rejected) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d line(s) rejected", len(result.Rejected)))
	}
	return nil
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// replayEvents processes every line of r. Blank lines are skipped.
func replayEvents(p *pipeline.Pipeline, r io.Reader, formatter *OutputFormatter) (ReplayResult, error) {
	result := ReplayResult{Events: []ReplayEvent{}}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		ev, err := event.Parse(raw)
		if err != nil {
			result.Rejected = append(result.Rejected, ReplayRejection{Line: line, Message: err.Error()})
			continue
		}

		res := p.Process(ev, ev.Timestamp)
		result.Processed++
		if len(res.Suggestions) > 0 {
			result.Suggested++
		}
		result.Events = append(result.Events, ReplayEvent{
			Line:        line,
			Timestamp:   ev.Timestamp,
			Action:      res.Action,
			Matched:     res.Matched,
			Suggestions: res.Suggestions,
		})

		if !formatter.IsJSON() {
			fmt.Fprintf(formatter.Writer, "[%d] %s %s -> %s\n",
				line, ev.Timestamp.Format(time.RFC3339Nano), res.Action, formatSuggestions(res.Suggestions))
		}
		formatter.VerboseLog("  matched: %v", res.Matched)
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// formatSuggestions renders "overview (Meta+W), tile_left" or "-".
func formatSuggestions(s []shortcut.Enriched) string {
	if len(s) == 0 {
		return "-"
	}
	parts := make([]string, len(s))
	for i, sg := range s {
		if sg.Key != "" {
			parts[i] = fmt.Sprintf("%s (%s)", sg.Action, sg.Key)
		} else {
			parts[i] = sg.Action
		}
	}
	return strings.Join(parts, ", ")
}
