// Package sinks implements concrete activity consumers: structured logging, the
// bounded in-memory feed behind the Logs view, and Pub/Sub fan-out. Each sink
// satisfies activity.Sink and is safe for repeated Consume/Close cycles.
package sinks
