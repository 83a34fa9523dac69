package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

// Batch is the message published for each flushed group of events.
type Batch struct {
	Events []activity.Event `json:"events"`
}

// PublisherSink forwards batches to a topic so other services can follow project changes.
type PublisherSink struct {
	publisher scraping.Publisher
	topic     string
}

// NewPublisherSink wires a publisher and topic. A nil publisher makes Consume a no-op.
func NewPublisherSink(publisher scraping.Publisher, topic string) *PublisherSink {
	return &PublisherSink{publisher: publisher, topic: topic}
}

// Consume publishes the whole batch as a single message.
func (s *PublisherSink) Consume(ctx context.Context, batch []activity.Event) error {
	if s == nil || s.publisher == nil || len(batch) == 0 {
		return nil
	}
	if _, err := s.publisher.Publish(ctx, s.topic, Batch{Events: batch}); err != nil {
		return fmt.Errorf("publish activity batch: %w", err)
	}
	return nil
}

// Close implements the Sink interface; the publisher is closed by its owner.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
