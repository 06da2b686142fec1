package notifier

import "context"

// Topics used on the background queue
const (
	TopicWelcome = "newsletter.welcome"
)

type QueueService interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Consume(ctx context.Context, topic string) (<-chan []byte, error)
	Close() error
}
