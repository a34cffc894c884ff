package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shortcut-sage/internal/telemetry"
)

func seedTelemetry(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := telemetry.OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Write(context.Background(),
		telemetry.Event{ID: "1", SessionID: "s", Type: telemetry.DaemonStart, Timestamp: base},
		telemetry.Event{ID: "2", SessionID: "s", Type: telemetry.EventReceived, Timestamp: base.Add(time.Minute), Duration: 2 * time.Millisecond},
		telemetry.Event{ID: "3", SessionID: "s", Type: telemetry.SuggestionShown, Timestamp: base.Add(time.Minute)},
		telemetry.Event{ID: "4", SessionID: "s", Type: telemetry.DaemonStop, Timestamp: base.Add(time.Hour)},
	))
	return path
}

func TestAuditText(t *testing.T) {
	db := seedTelemetry(t)

	out, err := runCommand(t, "audit", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Shortcut Sage - Dev Audit Report")
	assert.Contains(t, out, "Total Events: 4")
	assert.Contains(t, out, "event_received: 1")
	assert.Contains(t, out, "Review 1 shown suggestions for relevance")
}

func TestAuditJSON(t *testing.T) {
	db := seedTelemetry(t)

	out, err := runCommand(t, "--format", "json", "audit", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   telemetry.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.TotalEvents)
	assert.Equal(t, 1, resp.Data.EventTypeCounts["daemon_start"])
	assert.Equal(t, 0, resp.Data.ErrorCount)
}

func TestAuditMissingDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing.db")

	out, err := runCommand(t, "audit", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
	assert.NoFileExists(t, db)
}
