// Package activity provides the event primitives, non-blocking hub, and emitter
// interface the dashboard uses to record what happened to each project. The hub
// batches events on a background goroutine and fans them out to pluggable sinks
// such as structured logs, the in-memory feed behind the Logs view, or Pub/Sub.
package activity
