// Package events consumes commerce order lifecycle events and drives the
// ledger writer.
package events

import (
	"context"
	"strings"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/veloevents/service-booking-flow/internal/application"
	"github.com/veloevents/service-booking-flow/internal/kafka"
)

// TopicCommerceOrders is the inbound topic carrying commerce order events.
const TopicCommerceOrders = "commerce.order.events"

// Inbound event types.
const (
	OrderProcessed = "order.processed"
	OrderPaid      = "order.paid"
)

// OrderEvent is the payload of commerce order events.
type OrderEvent struct {
	OrderID int64 `json:"order_id"`
}

// OrderEventConsumer listens to commerce order events and writes ledgers.
type OrderEventConsumer struct {
	consumer *kafka.Consumer
	ledgers  *application.LedgerService
	logger   *zap.Logger
}

// NewOrderEventConsumer creates a consumer for commerce order events.
func NewOrderEventConsumer(
	brokers []string,
	groupID string,
	ledgers *application.LedgerService,
	logger *zap.Logger,
) *OrderEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, TopicCommerceOrders, logger)
	return &OrderEventConsumer{
		consumer: consumer,
		ledgers:  ledgers,
		logger:   logger,
	}
}

// Start begins consuming. It blocks until the context is cancelled.
func (c *OrderEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

func (c *OrderEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	ce, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from order topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return err
	}

	c.logger.Info("received order event",
		zap.String("type", ce.Type),
		zap.String("id", ce.ID),
	)

	switch {
	case strings.EqualFold(ce.Type, OrderProcessed):
		return c.handleProcessed(ctx, ce)

	case strings.EqualFold(ce.Type, OrderPaid):
		return c.handlePaid(ctx, ce)

	default:
		c.logger.Debug("ignoring unhandled order event type",
			zap.String("type", ce.Type),
		)
		return nil
	}
}

// handleProcessed stamps partner attribution and writes the ledger. Both
// operations are idempotent, so redeliveries are harmless.
func (c *OrderEventConsumer) handleProcessed(ctx context.Context, ce kafka.CloudEvent) error {
	var event OrderEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse order.processed data", zap.Error(err))
		return err
	}

	if err := c.ledgers.PersistPartnerMeta(ctx, event.OrderID); err != nil {
		return err
	}
	_, err := c.ledgers.Write(ctx, event.OrderID)
	return err
}

// handlePaid ensures the ledger exists and emits the deduplicated paid
// notification.
func (c *OrderEventConsumer) handlePaid(ctx context.Context, ce kafka.CloudEvent) error {
	var event OrderEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse order.paid data", zap.Error(err))
		return err
	}

	if err := c.ledgers.PersistPartnerMeta(ctx, event.OrderID); err != nil {
		return err
	}
	if _, err := c.ledgers.Write(ctx, event.OrderID); err != nil {
		return err
	}
	return c.ledgers.NotifyPaid(ctx, event.OrderID)
}

// Close closes the underlying Kafka consumer.
func (c *OrderEventConsumer) Close() error {
	return c.consumer.Close()
}
