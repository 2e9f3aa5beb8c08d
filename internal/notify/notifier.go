// Package notify publishes run summaries to RabbitMQ so downstream
// consumers (dashboards, alerting) see crawl outcomes without polling
// the API.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"kvartometr/server/internal/models"
)

// Notifier publishes run summaries on a fanout exchange. A single
// channel is reused; publishing after a broker disconnect reopens it.
type Notifier struct {
	url      string
	exchange string
	logger   *logrus.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewNotifier creates a notifier. It does not dial: the first publish
// establishes the connection, so a missing broker does not block
// startup.
func NewNotifier(url, exchange string, logger *logrus.Logger) *Notifier {
	return &Notifier{
		url:      url,
		exchange: exchange,
		logger:   logger,
	}
}

func (n *Notifier) ensureChannel() (*amqp.Channel, error) {
	if n.conn != nil && !n.conn.IsClosed() && n.channel != nil {
		return n.channel, nil
	}

	conn, err := amqp.Dial(n.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		n.exchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	n.conn = conn
	n.channel = channel
	return channel, nil
}

// PublishRunSummary sends one summary as a JSON message. The routing
// key carries the city code so consumers can bind selectively.
func (n *Notifier) PublishRunSummary(summary *models.RunSummary) error {
	channel, err := n.ensureChannel()
	if err != nil {
		return err
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if err := channel.Publish(
		n.exchange,
		string(summary.City),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("failed to publish run summary: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"city":  summary.City,
		"state": summary.State,
	}).Info("Published run summary")
	return nil
}

// Close tears down the broker connection.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}
