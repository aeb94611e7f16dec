package eventsink

import (
	"context"
	"fmt"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitSink publishes to a durable topic exchange.
type RabbitSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// DialRabbit connects and declares the exchange.
func DialRabbit(url, exchange string) (*RabbitSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange %q: %w", exchange, err)
	}
	return &RabbitSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *RabbitSink) Name() string { return "rabbitmq" }

func (s *RabbitSink) Send(ctx context.Context, msg model.Message, payload []byte) error {
	return s.ch.PublishWithContext(ctx,
		s.exchange,      // exchange
		RoutingKey(msg), // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func (s *RabbitSink) Close() error {
	if err := s.ch.Close(); err != nil {
		_ = s.conn.Close()
		return err
	}
	return s.conn.Close()
}
