package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/divanjapones/notifier"
)

type ArticleService struct {
	mock.Mock
}

func (m *ArticleService) Create(ctx context.Context, a *notifier.Article) (*notifier.Article, error) {
	args := m.Called(ctx, a)
	created, _ := args.Get(0).(*notifier.Article)
	return created, args.Error(1)
}

func (m *ArticleService) List(ctx context.Context) ([]notifier.Article, error) {
	args := m.Called(ctx)
	articles, _ := args.Get(0).([]notifier.Article)
	return articles, args.Error(1)
}

func (m *ArticleService) Pending(ctx context.Context, limit int) ([]notifier.Article, error) {
	args := m.Called(ctx, limit)
	articles, _ := args.Get(0).([]notifier.Article)
	return articles, args.Error(1)
}

func (m *ArticleService) MarkNotified(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *ArticleService) ResetNotified(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MagazineService struct {
	mock.Mock
}

func (m *MagazineService) Create(ctx context.Context, mag *notifier.Magazine) (*notifier.Magazine, error) {
	args := m.Called(ctx, mag)
	created, _ := args.Get(0).(*notifier.Magazine)
	return created, args.Error(1)
}

func (m *MagazineService) List(ctx context.Context) ([]notifier.Magazine, error) {
	args := m.Called(ctx)
	magazines, _ := args.Get(0).([]notifier.Magazine)
	return magazines, args.Error(1)
}

func (m *MagazineService) Pending(ctx context.Context, limit int) ([]notifier.Magazine, error) {
	args := m.Called(ctx, limit)
	magazines, _ := args.Get(0).([]notifier.Magazine)
	return magazines, args.Error(1)
}

func (m *MagazineService) MarkNotified(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MagazineService) ResetNotified(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
