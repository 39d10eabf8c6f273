package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"care-ledger/config"
	"care-ledger/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ports.EventPublisher on a Kafka topic. Messages are
// keyed so events for one wallet or payment stay on one partition.
type Publisher struct {
	writer messageWriter
	log    zerolog.Logger
}

// NewPublisher creates a publisher for cfg.Topic on cfg.Brokers.
func NewPublisher(cfg config.KafkaConfig, log zerolog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: log,
	}
}

// Publish writes event as JSON.
func (p *Publisher) Publish(ctx context.Context, event domain.LedgerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write ledger event: %w", err)
	}

	p.log.Debug().Str("type", string(event.Type)).Str("key", event.Key).Msg("ledger event published")
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// LogPublisher is used when no brokers are configured. It only logs.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.LedgerEvent) error {
	p.log.Info().
		Str("type", string(event.Type)).
		Str("key", event.Key).
		Interface("attributes", event.Attributes).
		Msg("ledger event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
