package sinks

import (
	"context"
	"strings"
	"sync"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity"
)

const defaultRingSize = 200

// Ring keeps the most recent events in memory. It backs the Logs view and
// supplies the log summary sent with refactor and log analysis requests.
type Ring struct {
	mu     sync.RWMutex
	buf    []activity.Event
	next   int
	filled bool
}

// NewRing allocates a ring holding at most size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &Ring{buf: make([]activity.Event, size)}
}

// Consume appends the batch, overwriting the oldest events when full.
func (r *Ring) Consume(_ context.Context, batch []activity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, evt := range batch {
		r.buf[r.next] = evt
		r.next = (r.next + 1) % len(r.buf)
		if r.next == 0 {
			r.filled = true
		}
	}
	return nil
}

// Close implements the Sink interface; retained events stay readable.
func (r *Ring) Close(context.Context) error {
	return nil
}

// Recent returns up to limit events, oldest first. limit <= 0 returns everything retained.
func (r *Ring) Recent(limit int) []activity.Event {
	return r.filter(limit, func(activity.Event) bool { return true })
}

// ForProject returns up to limit events scoped to projectID, oldest first.
func (r *Ring) ForProject(projectID string, limit int) []activity.Event {
	return r.filter(limit, func(e activity.Event) bool { return e.ProjectID == projectID })
}

// Summary renders matching events as log lines joined by newlines.
func (r *Ring) Summary(projectID string, limit int) string {
	events := r.ForProject(projectID, limit)
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, e.Line())
	}
	return strings.Join(lines, "\n")
}

func (r *Ring) filter(limit int, keep func(activity.Event) bool) []activity.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordered := r.ordered()
	out := make([]activity.Event, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if keep(ordered[i]) {
			out = append(out, ordered[i])
		}
	}
	// Collected newest first; flip to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (r *Ring) ordered() []activity.Event {
	if !r.filled {
		return r.buf[:r.next]
	}
	out := make([]activity.Event, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
