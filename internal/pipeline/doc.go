// Package pipeline wires the suggestion stages together for one event:
//
//	event → buffer.Add → features.Extract → matcher.Match → policy.Apply → shortcut.Enrich
//
// The buffer and the cooldown ledger are the only mutable state. Pipeline
// guards both with one mutex, so Process may be called from any goroutine,
// but hosting processes normally funnel events through a Dispatcher whose
// Run loop is the single writer.
//
// Rule sets and shortcut tables are swapped atomically; an in-flight
// Process call finishes with the snapshot it started with.
package pipeline
