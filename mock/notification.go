package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/divanjapones/notifier"
)

type Mailer struct {
	mock.Mock
}

func (m *Mailer) SendEmail(ctx context.Context, msg *notifier.Message) (*notifier.Receipt, error) {
	args := m.Called(ctx, msg)
	receipt, _ := args.Get(0).(*notifier.Receipt)
	return receipt, args.Error(1)
}

type QueueService struct {
	mock.Mock
}

func (m *QueueService) Publish(ctx context.Context, topic string, body []byte) error {
	args := m.Called(ctx, topic, body)
	return args.Error(0)
}

func (m *QueueService) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	args := m.Called(ctx, topic)
	ch, _ := args.Get(0).(<-chan []byte)
	return ch, args.Error(1)
}

func (m *QueueService) Close() error {
	return m.Called().Error(0)
}

// Flusher mocks the manual flush behind the HTTP endpoint
type Flusher struct {
	mock.Mock
}

func (m *Flusher) Flush(ctx context.Context) (*notifier.FlushSummary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).(*notifier.FlushSummary)
	return summary, args.Error(1)
}
