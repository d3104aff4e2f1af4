package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2001-daminho/nexcrypto/libs/kafka"
	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	EventTypeLedgerChange = "ledger.change"
	eventVersion          = 1
)

type ChangeEvent struct {
	kafka.Envelope
	Change
}

// KafkaPublisher publishes changes so every wallet replica's hub sees them.
type KafkaPublisher struct {
	publisher kafka.Publisher
	topic     string
}

func NewKafkaPublisher(publisher kafka.Publisher, topic string) *KafkaPublisher {
	return &KafkaPublisher{publisher: publisher, topic: topic}
}

func (p *KafkaPublisher) PublishChange(ctx context.Context, c Change) error {
	eventID := kafka.DeterministicEventID(c.Table, string(c.Op), c.RowID.String(), c.At.UTC().Format("2006-01-02T15:04:05.000000000Z"))
	env, err := kafka.NewEnvelopeWithID(eventID, EventTypeLedgerChange, eventVersion, "")
	if err != nil {
		return err
	}
	if _, _, err := p.publisher.PublishJSON(ctx, p.topic, c.UserID.String(), ChangeEvent{Envelope: env, Change: c}); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

type changeSink interface {
	PublishChange(ctx context.Context, c Change) error
}

// ConsumerHandler decodes ledger change events into a hub.
type ConsumerHandler struct {
	sink   changeSink
	logger *slog.Logger
}

func NewConsumerHandler(hub *Hub, logger *slog.Logger) *ConsumerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerHandler{sink: hub, logger: logger}
}

func (h *ConsumerHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.DLQ(err, "decode")
	}
	if err := event.Envelope.Validate(); err != nil {
		return kafka.DLQ(err, "invalid_envelope")
	}
	if event.EventType != EventTypeLedgerChange {
		h.logger.Debug("skipping unknown event type", "event_type", event.EventType)
		return nil
	}
	if event.UserID == uuid.Nil || event.Table == "" {
		return kafka.DLQ(fmt.Errorf("change missing user or table"), "invalid_change")
	}
	return h.sink.PublishChange(ctx, event.Change)
}
