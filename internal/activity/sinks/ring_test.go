package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity"
)

func event(project, msg string, sec int64) activity.Event {
	return activity.Event{
		TS:        time.Unix(1700000000+sec, 0),
		Kind:      activity.KindCodeUpdated,
		Level:     activity.LevelInfo,
		ProjectID: project,
		Message:   msg,
	}
}

func TestRingKeepsNewestInOrder(t *testing.T) {
	t.Parallel()

	r := NewRing(3)
	ctx := context.Background()
	require.NoError(t, r.Consume(ctx, []activity.Event{event("a", "1", 1), event("b", "2", 2)}))
	require.NoError(t, r.Consume(ctx, []activity.Event{event("a", "3", 3), event("a", "4", 4)}))

	got := r.Recent(0)
	require.Len(t, got, 3)
	require.Equal(t, []string{"2", "3", "4"}, []string{got[0].Message, got[1].Message, got[2].Message})

	last := r.Recent(1)
	require.Len(t, last, 1)
	require.Equal(t, "4", last[0].Message)
}

func TestRingForProjectAndSummary(t *testing.T) {
	t.Parallel()

	r := NewRing(10)
	require.NoError(t, r.Consume(context.Background(), []activity.Event{
		event("a", "first", 1), event("b", "other", 2), event("a", "second", 3),
	}))

	got := r.ForProject("a", 0)
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Message)

	summary := r.Summary("a", 1)
	require.Contains(t, summary, "second")
	require.NotContains(t, summary, "first")
	require.Empty(t, r.Summary("zzz", 5))
}

func TestRingDefaultSize(t *testing.T) {
	t.Parallel()

	r := NewRing(0)
	require.Len(t, r.buf, defaultRingSize)
	require.Empty(t, r.Recent(5))
	require.NoError(t, r.Close(context.Background()))
}
