package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/splitledger/payment-confirm/internal/port/output"
)

const (
	ExchangeName        = "confirmations"
	QueueName           = "confirmation_requests"
	RequestedRoutingKey = "confirmation.requested"
	ResolvedRoutingKey  = "confirmation.resolved"
	PrefetchCount       = 1 // Adopt one confirmation request at a time per worker
)

// ConfirmationRequestedMessage asks a worker to run a confirmation loop.
type ConfirmationRequestedMessage struct {
	Reference string    `json:"reference"`
	Timestamp time.Time `json:"timestamp"`
}

// OutcomeMessage announces a terminal confirmation outcome.
type OutcomeMessage struct {
	Reference       string    `json:"reference"`
	Status          string    `json:"status"`
	AppliedEffectID string    `json:"applied_effect_id,omitempty"`
	ResolvedAt      time.Time `json:"resolved_at"`
}

// RabbitMQClient is a secondary adapter that implements the
// ConfirmationMessaging output port.
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// NewRabbitMQClient creates a new RabbitMQ client (returns interface for ports)
func NewRabbitMQClient(amqpURL string, logger *slog.Logger) (output.ConfirmationMessaging, error) {
	return NewRabbitMQClientConcrete(amqpURL, logger)
}

// NewRabbitMQClientConcrete creates a new RabbitMQ client (returns concrete type for workers)
func NewRabbitMQClientConcrete(amqpURL string, logger *slog.Logger) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	err = channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare queue
	_, err = channel.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	err = channel.QueueBind(
		QueueName,
		RequestedRoutingKey,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: channel,
		logger:  logger,
	}, nil
}

// PublishConfirmationRequested publishes a confirmation request for a
// reference. Duplicate publishes per reference are fine; the worker's runner
// deduplicates against its active loops.
func (c *RabbitMQClient) PublishConfirmationRequested(reference string) error {
	message := ConfirmationRequestedMessage{
		Reference: reference,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = c.channel.Publish(
		ExchangeName,
		RequestedRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // Make message persistent
			MessageId:    uuid.NewString(),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Info("published confirmation request", "reference", reference)
	return nil
}

// PublishOutcome publishes a terminal outcome event for downstream consumers.
func (c *RabbitMQClient) PublishOutcome(outcome *core.ConfirmationOutcome) error {
	message := OutcomeMessage{
		Reference:       outcome.Reference,
		Status:          string(outcome.Status),
		AppliedEffectID: outcome.AppliedEffectID,
		ResolvedAt:      outcome.ResolvedAt,
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	err = c.channel.Publish(
		ExchangeName,
		ResolvedRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}

	c.logger.Info("published confirmation outcome",
		"reference", outcome.Reference,
		"status", outcome.Status,
	)
	return nil
}

// ConsumeConfirmationRequests starts consuming confirmation requests.
func (c *RabbitMQClient) ConsumeConfirmationRequests(handler func(ConfirmationRequestedMessage) error) error {
	// Set QoS to adopt one request at a time
	err := c.channel.Qos(
		PrefetchCount,
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		QueueName,
		"",    // consumer tag
		false, // auto-ack (we'll manually ack after adoption)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("started consuming confirmation requests")

	go func() {
		for msg := range msgs {
			var request ConfirmationRequestedMessage
			if err := json.Unmarshal(msg.Body, &request); err != nil {
				c.logger.Warn("error unmarshaling confirmation request", "error", err)
				msg.Nack(false, false) // Malformed, drop
				continue
			}

			if err := handler(request); err != nil {
				// A missing record means the operation already resolved;
				// nothing to retry.
				if errors.Is(err, core.ErrNoPendingOperation) {
					c.logger.Info("confirmation request for resolved operation",
						"reference", request.Reference)
					msg.Ack(false)
					continue
				}
				c.logger.Warn("error adopting confirmation request",
					"reference", request.Reference,
					"error", err,
				)
				msg.Nack(false, true) // Requeue for retry
				continue
			}

			msg.Ack(false)
		}
	}()

	return nil
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
