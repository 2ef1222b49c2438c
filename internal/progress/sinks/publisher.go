package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/progress"
)

// Publisher sends a payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordMessage is the payload published for every record write.
type RecordMessage struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// PublisherSink forwards record events to a message topic so downstream
// systems can react to verified or flagged profiles.
type PublisherSink struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

// NewPublisherSink builds a sink publishing to topic.
func NewPublisherSink(pub Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes each record event; other kinds are ignored. Every event
// is attempted and the failures are joined.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Kind != progress.KindRecord {
			continue
		}
		msg := RecordMessage{
			RunID:     evt.RunUUID().String(),
			Name:      evt.Name,
			Status:    string(evt.Status),
			Score:     evt.Score,
			Timestamp: evt.TS.UTC(),
		}
		id, err := s.pub.Publish(ctx, s.topic, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish record %q: %w", evt.Name, err))
			continue
		}
		s.logger.Debug("record published", zap.String("name", evt.Name), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
