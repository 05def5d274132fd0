// Package events publishes document lifecycle events for downstream
// consumers such as the chat indexer.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/segmentio/kafka-go"

	"kbapi/internal/config"
	"kbapi/internal/logging"
)

// Event types.
const (
	TypeSubmitted = "document.submitted"
	TypeApproved  = "document.approved"
	TypeRejected  = "document.rejected"
	TypeDeleted   = "document.deleted"
)

// Event is the payload of a lifecycle message.
type Event struct {
	Type          string    `json:"type"`
	TenantID      string    `json:"tenant_id"`
	DocumentID    string    `json:"document_id"`
	VersionID     string    `json:"version_id,omitempty"`
	VersionNumber int       `json:"version_number,omitempty"`
	ActorID       string    `json:"actor_id"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher sends lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Writer is the subset of kafka.Writer used by KafkaPublisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by document id, so
// events of one document stay ordered within a partition.
type KafkaPublisher struct {
	writer Writer
	logger *log.Logger
}

// New returns a kafka publisher for cfg, or a Noop publisher when no brokers
// are configured.
func New(cfg config.KafkaConfig, logger *log.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return Noop{}
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           3 * time.Second,
	}
	return NewKafkaPublisherWithWriter(w, logger)
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer, logger *log.Logger) *KafkaPublisher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// Publish marshals e and writes it. A zero OccurredAt is set to now.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(e.DocumentID),
		Value:   b,
		Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
		Time:    e.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().
			Str("component", "events").
			Str("event", "publish_failed").
			Str("type", e.Type).
			Str("document_id", e.DocumentID).
			Str("error_message", err.Error()).
			Msg("")
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	p.logger.Debug().
		Str("component", "events").
		Str("event", "published").
		Str("type", e.Type).
		Str("document_id", e.DocumentID).
		Msg("")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
