package notification

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/divanjapones/notifier"
)

// Subscriber is implemented by Service
type Subscriber interface {
	NotifySubscription(ctx context.Context, email string) error
}

// WelcomeTask is the message published on notifier.TopicWelcome
type WelcomeTask struct {
	Email string `json:"email"`
}

// PublishWelcome submits a welcome email for background delivery
func PublishWelcome(ctx context.Context, queue notifier.QueueService, email string) error {
	body, err := json.Marshal(&WelcomeTask{Email: email})
	if err != nil {
		return errors.Wrap(err, "marshal welcome task")
	}
	return queue.Publish(ctx, notifier.TopicWelcome, body)
}

// WelcomeWorker consumes welcome tasks until its context is done.
type WelcomeWorker struct {
	queue      notifier.QueueService
	subscriber Subscriber
	logger     zerolog.Logger
}

func NewWelcomeWorker(queue notifier.QueueService, subscriber Subscriber, logger zerolog.Logger) *WelcomeWorker {
	return &WelcomeWorker{
		queue:      queue,
		subscriber: subscriber,
		logger:     logger.With().Str("component", "welcome_worker").Logger(),
	}
}

// Start subscribes to the queue. done is closed once the consumer goroutine returns.
func (w *WelcomeWorker) Start(ctx context.Context) (done <-chan struct{}, err error) {
	messages, err := w.queue.Consume(ctx, notifier.TopicWelcome)
	if err != nil {
		return nil, errors.Wrapf(err, "consume %s", notifier.TopicWelcome)
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for body := range messages {
			w.handle(ctx, body)
		}
	}()

	return finished, nil
}

func (w *WelcomeWorker) handle(ctx context.Context, body []byte) {
	var task WelcomeTask
	if err := json.Unmarshal(body, &task); err != nil {
		w.logger.Error().Err(err).Msg("Dropping malformed welcome task")
		return
	}
	if task.Email == "" {
		w.logger.Warn().Msg("Dropping welcome task without email")
		return
	}

	if err := w.subscriber.NotifySubscription(ctx, task.Email); err != nil {
		w.logger.Error().Err(err).Str("email", task.Email).Msg("Failed to send welcome email")
		return
	}
	w.logger.Info().Str("email", task.Email).Msg("Welcome email sent")
}
