package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shortcut-sage/internal/event"
	"github.com/roach88/shortcut-sage/internal/shortcut"
	"github.com/roach88/shortcut-sage/internal/transport"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration
	Client  *http.Client // overridable in tests
}

// sendError mirrors the daemon's error body.
type sendError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <event-json>",
		Short: "Send an event to a running daemon",
		Long: `Send one event to a running daemon and print the suggestions it returns.

The event is validated locally before it is sent. Use "-" to read the
event from stdin.

Exit codes:
  0 - Event accepted
  1 - Event rejected
  2 - Daemon unreachable

Examples:
  shortcut-sage send '{"timestamp":"2025-01-01T12:00:00Z","type":"desktop_state","action":"show_desktop"}'
  echo "$EVENT" | shortcut-sage send - --addr 127.0.0.1:7879`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", transport.DefaultAddr, "daemon address")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Second, "request timeout")

	return cmd
}

func runSend(opts *SendOptions, arg string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	payload := []byte(arg)
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		payload = data
	}

	// Reject locally so typos don't need a round-trip.
	if _, err := event.Parse(payload); err != nil {
		formatter.Error(ErrCodeInvalidEvent, err.Error(), nil)
		return WrapExitError(ExitFailure, "event rejected", err)
	}

	ctx, cancel := context.WithTimeout(cmdContext(cmd), opts.Timeout)
	defer cancel()

	url := "http://" + strings.TrimPrefix(opts.Addr, "http://") + "/v1/events"
	formatter.VerboseLog("POST %s", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid daemon address", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		formatter.Error(ErrCodeUnreachable, err.Error(), map[string]string{"addr": opts.Addr})
		return WrapExitError(ExitCommandError, "daemon unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var suggestions []shortcut.Enriched
		if err := json.NewDecoder(resp.Body).Decode(&suggestions); err != nil {
			return WrapExitError(ExitCommandError, "malformed daemon response", err)
		}
		return outputSendSuccess(formatter, suggestions)
	case http.StatusBadRequest:
		var body sendError
		json.NewDecoder(resp.Body).Decode(&body)
		msg := body.Error
		if body.Field != "" {
			msg = body.Field + ": " + msg
		}
		formatter.Error(ErrCodeInvalidEvent, msg, nil)
		return NewExitError(ExitFailure, "event rejected: "+msg)
	default:
		msg := fmt.Sprintf("daemon returned %s", resp.Status)
		formatter.Error(ErrCodeUnreachable, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
}

func outputSendSuccess(formatter *OutputFormatter, suggestions []shortcut.Enriched) error {
	if suggestions == nil {
		suggestions = []shortcut.Enriched{}
	}
	if formatter.IsJSON() {
		return formatter.Success(suggestions)
	}

	w := formatter.Writer
	if len(suggestions) == 0 {
		fmt.Fprintln(w, "No suggestions.")
		return nil
	}
	for _, s := range suggestions {
		key := s.Key
		if key == "" {
			key = "(no shortcut)"
		}
		fmt.Fprintf(w, "%-20s %-16s %3d  %s\n", s.Action, key, s.Priority, s.Description)
	}
	return nil
}

// cmdContext returns the command's context or Background.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
