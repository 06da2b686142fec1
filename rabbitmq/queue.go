package rabbitmq

import (
	"context"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueService publishes and consumes durable messages on a RabbitMQ broker.
type QueueService struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewQueueService(url string) (*QueueService, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open amqp channel")
	}

	return &QueueService{
		conn: conn,
		ch:   ch,
	}, nil
}

func (s *QueueService) declare(topic string) (amqp.Queue, error) {
	return s.ch.QueueDeclare(
		topic,
		true,
		false,
		false,
		false,
		nil,
	)
}

func (s *QueueService) Publish(ctx context.Context, topic string, body []byte) error {
	q, err := s.declare(topic)
	if err != nil {
		return errors.Wrapf(err, "declare queue %s", topic)
	}

	return s.ch.PublishWithContext(ctx,
		"",
		q.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (s *QueueService) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	q, err := s.declare(topic)
	if err != nil {
		return nil, errors.Wrapf(err, "declare queue %s", topic)
	}

	deliveries, err := s.ch.Consume(
		q.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "consume queue %s", topic)
	}

	messages := make(chan []byte)

	go func() {
		defer close(messages)

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case messages <- d.Body:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return messages, nil
}

func (s *QueueService) Close() error {
	if err := s.ch.Close(); err != nil {
		_ = s.conn.Close()
		return err
	}
	return s.conn.Close()
}
