package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dds-registration/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Publisher streams domain events. Delivery is best effort: callers log
// failures and never roll back on them.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Envelope wraps every published payload.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type Producer struct {
	Writer *kafka.Writer
	logger *logger.Logger
}

// NewProducer writes to any topic; the topic is set per message.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &Producer{Writer: writer, logger: log}
}

func NewEnvelope(topic string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       topic,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Publish streams payload to topic keyed by key
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	env, err := NewEnvelope(topic, payload)
	if err != nil {
		return err
	}
	msgBytes, err := json.Marshal(env)
	if err != nil {
		return err
	}

	p.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s id=%s", key, env.ID))

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// LogPublisher is used when Kafka is disabled; events only reach the log.
type LogPublisher struct {
	Logger *logger.Logger
}

func (p LogPublisher) Publish(_ context.Context, topic, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.Logger.Debug("KAFKA", fmt.Sprintf("[DISABLED] %s key=%s %s", topic, key, raw))
	return nil
}

// Fanout publishes to every publisher in turn and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic, key string, payload any) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, topic, key, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
