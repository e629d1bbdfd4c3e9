package mq

import (
	"encoding/json"
	"fmt"

	"stellabench/internal/types"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ReportQueueName = "report_queue"
)

// Notifier announces finished subject reports on the message queue so
// dashboards can refresh without polling the output directory. A nil
// RabbitMQ client makes every publish a no-op.
type Notifier struct {
	rabbitMQ RabbitMQ
	logger   *zap.Logger
}

func NewNotifier(rabbitMQ RabbitMQ, logger *zap.Logger) *Notifier {
	return &Notifier{rabbitMQ: rabbitMQ, logger: logger}
}

func (n *Notifier) Enabled() bool {
	return n.rabbitMQ != nil
}

func (n *Notifier) PublishReport(msg types.ReportMessage) error {
	if n.rabbitMQ == nil {
		return nil
	}

	channel := n.rabbitMQ.GetChannel()
	if channel == nil {
		return fmt.Errorf("failed to get RabbitMQ channel")
	}
	defer channel.Close()

	_, err := channel.QueueDeclare(
		ReportQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare report queue: %w", err)
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal report message: %w", err)
	}

	if err := channel.Publish(
		"",
		ReportQueueName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBytes,
		},
	); err != nil {
		return fmt.Errorf("failed to publish report message: %w", err)
	}

	n.logger.Debug("published report notification",
		zap.String("subject", msg.Subject),
		zap.String("batch_id", msg.BatchID))
	return nil
}
