package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

const (
	TypeDocumentValidated = "document.validated"
	TypeBatchValidated    = "batch.validated"

	DefaultTopic = "document-validation"
)

// Event announces a validation decision to downstream case systems.
type Event struct {
	Type          string              `json:"type"`
	ID            string              `json:"id"`
	CaseID        string              `json:"case_id,omitempty"`
	DocType       string              `json:"doc_type,omitempty"`
	Decision      validation.Decision `json:"decision"`
	Score         float64             `json:"score"`
	DocumentCount int                 `json:"document_count,omitempty"`
	Status        validation.Status   `json:"status"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

func DocumentValidated(caseID string, r validation.ValidationResult, at time.Time) Event {
	return Event{
		Type:       TypeDocumentValidated,
		ID:         r.DocumentID,
		CaseID:     caseID,
		DocType:    r.DocType,
		Decision:   r.Decision,
		Score:      r.OverallScore,
		Status:     r.Status,
		OccurredAt: at.UTC(),
	}
}

func BatchValidated(caseID string, b validation.BatchResult) Event {
	return Event{
		Type:          TypeBatchValidated,
		ID:            b.BatchID,
		CaseID:        caseID,
		Decision:      b.FinalDecision,
		Score:         b.OverallScore,
		DocumentCount: b.DocumentCount,
		Status:        b.Status,
		OccurredAt:    b.Timestamp.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by case id so a case's
// events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := encode(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s %s: %w", e.Type, e.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encode(e Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	key := e.CaseID
	if key == "" {
		key = e.ID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
		Time: e.OccurredAt,
	}, nil
}

// LogPublisher records events in the service log when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("validation event",
		"type", e.Type,
		"id", e.ID,
		"case_id", e.CaseID,
		"decision", e.Decision,
		"score", e.Score,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
