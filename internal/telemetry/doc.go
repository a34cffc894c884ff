// Package telemetry records what the daemon did: events received,
// suggestions shown and accepted, lifecycle and reload events, and errors.
//
// Telemetry is local only. Events are aggregated in memory by Metrics and,
// when a Store is configured, persisted to SQLite by a background
// Recorder. Audit summarizes a Store into a developer report.
//
// Properties never carry raw input or window titles; callers pass symbolic
// action ids and counts only.
package telemetry
