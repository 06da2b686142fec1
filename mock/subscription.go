package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/divanjapones/notifier"
)

type SubscriberService struct {
	mock.Mock
}

func (m *SubscriberService) Subscribe(ctx context.Context, email string) (*notifier.Subscriber, bool, error) {
	args := m.Called(ctx, email)
	sub, _ := args.Get(0).(*notifier.Subscriber)
	return sub, args.Bool(1), args.Error(2)
}

func (m *SubscriberService) List(ctx context.Context) ([]notifier.Subscriber, error) {
	args := m.Called(ctx)
	subs, _ := args.Get(0).([]notifier.Subscriber)
	return subs, args.Error(1)
}

func (m *SubscriberService) Unsubscribe(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}
