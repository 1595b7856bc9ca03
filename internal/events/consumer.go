package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"cashback-ledger/internal/cashback"
	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
)

// SaleHandler applies sale lifecycle events to the ledger.
type SaleHandler interface {
	HandleSaleCompleted(ctx context.Context, ev domain.SaleEvent) (*cashback.AccumulateResult, error)
	HandleSaleCanceled(ctx context.Context, ev domain.SaleEvent) (*cashback.ReverseResult, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// errSkip marks messages that can never succeed. They are committed and
// dropped instead of retried.
var errSkip = errors.New("unprocessable sale event")

type SaleConsumer struct {
	reader  messageReader
	handler SaleHandler
	backoff time.Duration
}

func NewSaleConsumer(brokers []string, topic, groupID string, handler SaleHandler) *SaleConsumer {
	return newSaleConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), handler, time.Second)
}

func newSaleConsumer(r messageReader, handler SaleHandler, backoff time.Duration) *SaleConsumer {
	return &SaleConsumer{reader: r, handler: handler, backoff: backoff}
}

// Run processes messages one at a time until ctx is canceled. Offsets are
// committed only after the ledger transaction of the message committed.
func (c *SaleConsumer) Run(ctx context.Context) error {
	logger.Info("Sale consumer started")
	defer logger.Info("Sale consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.process(ctx, msg); err != nil {
			// Only ctx cancellation ends up here.
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// process retries transient failures until ctx ends.
func (c *SaleConsumer) process(ctx context.Context, msg kafka.Message) error {
	for attempt := 1; ; attempt++ {
		err := Dispatch(ctx, c.handler, msg.Value)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errSkip) || domain.KindOf(err) != domain.KindInternal:
			logger.Warn("Sale event skipped", "offset", msg.Offset, "partition", msg.Partition, "error", err)
			return nil
		}

		logger.Error("Sale event failed, retrying", "offset", msg.Offset, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(min(attempt, 30))):
		}
	}
}

func (c *SaleConsumer) Close() error {
	return c.reader.Close()
}

// Dispatch decodes one sale event and hands it to the handler.
func Dispatch(ctx context.Context, handler SaleHandler, value []byte) error {
	var ev domain.SaleEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("%w: %v", errSkip, err)
	}
	if ev.OrgID == "" || ev.ClientID == "" || ev.SaleID == "" {
		return fmt.Errorf("%w: orgId, clientId and saleId are required", errSkip)
	}

	switch ev.Type {
	case domain.EventSaleCompleted:
		_, err := handler.HandleSaleCompleted(ctx, ev)
		return err
	case domain.EventSaleCanceled:
		_, err := handler.HandleSaleCanceled(ctx, ev)
		return err
	default:
		return fmt.Errorf("%w: unknown type %q", errSkip, ev.Type)
	}
}
