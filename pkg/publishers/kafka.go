package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	id     string
	typ    string
	topic  string
	writer kafkaWriter
	log    Logger
}

func newKafkaPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.Kafka == nil {
		return nil, fmt.Errorf("publisher %q missing kafka configuration", cfg.ID)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher %q requires at least one broker", cfg.ID)
	}

	return &kafkaPublisher{
		id:    cfg.ID,
		typ:   TypeKafka,
		topic: cfg.Kafka.Topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		log: ensureLogger(log),
	}, nil
}

func (k *kafkaPublisher) ID() string   { return k.id }
func (k *kafkaPublisher) Type() string { return k.typ }

// Publish writes the event keyed by call type so calls of one type stay ordered.
func (k *kafkaPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: k.topic,
		Key:   []byte(evt.CallType),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	for name, v := range evt.attributes() {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(v)})
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.log.ErrorObj("kafka publisher send failed", "publisher_kafka_error", map[string]any{
			"publisher_id": k.id,
			"error":        err.Error(),
		})
		return fmt.Errorf("write kafka message: %w", err)
	}
	k.log.DebugObj("kafka publisher delivered event", "publisher_kafka_delivery", map[string]any{
		"publisher_id": k.id,
		"topic":        k.topic,
	})
	return nil
}

func (k *kafkaPublisher) Close() error {
	return k.writer.Close()
}
