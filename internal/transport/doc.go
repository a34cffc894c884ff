// Package transport exposes the daemon over HTTP on a loopback address.
//
// Window-manager scripts POST events to /v1/events and receive the
// enriched suggestions in the response. Presentation clients subscribe to
// /v1/suggestions over WebSocket and receive every non-empty suggestion
// list as it is produced. All inbound events pass through a
// pipeline.Dispatcher, so the pipeline sees one event at a time.
package transport
