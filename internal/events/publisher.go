package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
)

// Publisher emits ledger events after the ledger transaction committed.
type Publisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, timeout)
}

func newKafkaPublisher(w messageWriter, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{writer: w, timeout: timeout}
}

// Publish writes event keyed by client id so a client's events stay ordered.
func (k *KafkaPublisher) Publish(ctx context.Context, event domain.LedgerEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	logger.ExternalServiceCall("kafka", "WriteMessages", "type", event.Type, "clientID", event.ClientID)
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ClientID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	})
	logger.ExternalServiceResult("kafka", "WriteMessages", err, "type", event.Type)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// NopPublisher drops every event. It is used when kafka is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event domain.LedgerEvent) error {
	logger.Debug("Ledger event dropped, no publisher configured", "type", event.Type, "clientID", event.ClientID)
	return nil
}

func (NopPublisher) Close() error { return nil }
