package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher pushes events to a RabbitMQ topic exchange for consumers
// outside the process (UI refresh feeds, notification services).
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishJSON sends the payload with the event type as routing key.
func (p *AMQPPublisher) PublishJSON(eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(ctx, p.exchange, eventType, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        raw,
	})
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Fanout publishes to several publishers, keeping the first error.
type Fanout []interface {
	PublishJSON(eventType string, payload interface{}) error
}

func (f Fanout) PublishJSON(eventType string, payload interface{}) error {
	var first error
	for _, p := range f {
		if err := p.PublishJSON(eventType, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
