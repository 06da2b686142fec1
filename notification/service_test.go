package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/divanjapones/notifier"
	"github.com/divanjapones/notifier/mock"
)

type fakeArticles struct {
	mu       sync.Mutex
	rows     []notifier.Article
	markErr  error
	pendErr  error
	resets   int
	now      time.Time
	claimLog []string
}

func (f *fakeArticles) Create(_ context.Context, a *notifier.Article) (*notifier.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *a)
	return a, nil
}

func (f *fakeArticles) List(_ context.Context) ([]notifier.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifier.Article(nil), f.rows...), nil
}

func (f *fakeArticles) Pending(_ context.Context, limit int) ([]notifier.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendErr != nil {
		return nil, f.pendErr
	}

	var due []notifier.Article
	for _, a := range f.rows {
		if !a.NotifySent && !a.DueAt().After(f.now) {
			due = append(due, a)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].PublishedAt.Before(due[j].PublishedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeArticles) MarkNotified(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimLog = append(f.claimLog, id)
	if f.markErr != nil {
		return false, f.markErr
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			if f.rows[i].NotifySent {
				return false, nil
			}
			f.rows[i].NotifySent = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeArticles) ResetNotified(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].NotifySent = false
		}
	}
	return nil
}

func (f *fakeArticles) unsent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.rows {
		if !a.NotifySent {
			n++
		}
	}
	return n
}

type fakeMagazines struct {
	rows []notifier.Magazine
}

func (f *fakeMagazines) Create(_ context.Context, m *notifier.Magazine) (*notifier.Magazine, error) {
	f.rows = append(f.rows, *m)
	return m, nil
}

func (f *fakeMagazines) List(_ context.Context) ([]notifier.Magazine, error) {
	return f.rows, nil
}

func (f *fakeMagazines) Pending(_ context.Context, limit int) ([]notifier.Magazine, error) {
	var due []notifier.Magazine
	for _, m := range f.rows {
		if !m.NotifySent {
			due = append(due, m)
		}
	}
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeMagazines) MarkNotified(_ context.Context, id string) (bool, error) {
	for i := range f.rows {
		if f.rows[i].ID == id && !f.rows[i].NotifySent {
			f.rows[i].NotifySent = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMagazines) ResetNotified(_ context.Context, id string) error {
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].NotifySent = false
		}
	}
	return nil
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []*notifier.Message
	err      error
}

func (m *recordingMailer) SendEmail(_ context.Context, msg *notifier.Message) (*notifier.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.messages = append(m.messages, msg)
	return &notifier.Receipt{Provider: "test", Accepted: len(msg.Bcc)}, nil
}

func (m *recordingMailer) sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func subscribersOf(emails ...string) *mock.SubscriberService {
	subs := make([]notifier.Subscriber, 0, len(emails))
	for i, e := range emails {
		subs = append(subs, *notifier.NewSubscriber(fmt.Sprintf("s%d", i), e))
	}
	m := new(mock.SubscriberService)
	m.On("List", tmock.Anything).Return(subs, nil)
	return m
}

func newTestService(t *testing.T, subscribers notifier.SubscriberService, articles *fakeArticles, mailer *recordingMailer) *Service {
	t.Helper()
	return &Service{
		Subscribers: subscribers,
		Articles:    articles,
		Magazines:   &fakeMagazines{},
		Mailer:      mailer,
		Composer:    newTestComposer(t),
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return testNow },
	}
}

func dueArticles(n int) *fakeArticles {
	f := &fakeArticles{now: testNow}
	for i := 0; i < n; i++ {
		f.rows = append(f.rows, notifier.Article{
			ID:          fmt.Sprintf("a%02d", i),
			Title:       fmt.Sprintf("Artículo %d", i),
			Type:        notifier.TypePublication,
			PublishedAt: testNow.Add(-time.Duration(n-i) * time.Minute),
		})
	}
	return f
}

func TestDispatchBroadcast_NoSubscribers(t *testing.T) {
	mailer := &recordingMailer{}
	s := newTestService(t, subscribersOf(), dueArticles(0), mailer)

	result := s.DispatchBroadcast(context.Background(), notifier.Payload{Subject: "x"})

	assert.False(t, result.Sent)
	assert.Equal(t, ReasonNoSubscribers, result.Reason)
	assert.Zero(t, mailer.sent())
}

func TestDispatchBroadcast_NilSubscriberService(t *testing.T) {
	mailer := &recordingMailer{}
	s := newTestService(t, nil, dueArticles(0), mailer)

	result := s.DispatchBroadcast(context.Background(), notifier.Payload{Subject: "x"})

	assert.False(t, result.Sent)
	assert.Equal(t, ReasonNoSubscribers, result.Reason)
}

func TestDispatchBroadcast_AllSubscribersInBcc(t *testing.T) {
	mailer := &recordingMailer{}
	s := newTestService(t, subscribersOf("a@example.com", "b@example.com", "c@example.com"), dueArticles(0), mailer)

	result := s.DispatchBroadcast(context.Background(), notifier.Payload{Subject: "Hola", Text: "t", HTML: "<p>t</p>"})

	assert.True(t, result.Sent)
	assert.Equal(t, 3, result.Count)
	require.Equal(t, 1, mailer.sent())
	msg := mailer.messages[0]
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, msg.Bcc)
	assert.Empty(t, msg.To)
	assert.Equal(t, "Hola", msg.Subject)
}

func TestDispatchBroadcast_ErrorsBecomeResult(t *testing.T) {
	subs := new(mock.SubscriberService)
	subs.On("List", tmock.Anything).Return(nil, errors.New("connection refused"))
	s := newTestService(t, subs, dueArticles(0), &recordingMailer{})

	result := s.DispatchBroadcast(context.Background(), notifier.Payload{})
	assert.False(t, result.Sent)
	assert.Equal(t, "connection refused", result.Error)

	mailer := &recordingMailer{err: &notifier.EmailDeliveryError{Provider: "smtp", Message: "421"}}
	s = newTestService(t, subscribersOf("a@example.com"), dueArticles(0), mailer)

	result = s.DispatchBroadcast(context.Background(), notifier.Payload{})
	assert.False(t, result.Sent)
	assert.Contains(t, result.Error, "smtp delivery failed")
}

func TestNotifySubscription(t *testing.T) {
	mailer := &recordingMailer{}
	s := newTestService(t, nil, dueArticles(0), mailer)

	require.NoError(t, s.NotifySubscription(context.Background(), "foo@example.com"))

	require.Equal(t, 1, mailer.sent())
	assert.Equal(t, "foo@example.com", mailer.messages[0].To)
	assert.Empty(t, mailer.messages[0].Bcc)
	assert.Equal(t, "¡Te uniste a Diván Japonés!", mailer.messages[0].Subject)

	s.Mailer = &recordingMailer{err: &notifier.EmailConfigError{Provider: "smtp", Missing: []string{"SMTP_HOST"}}}
	err := s.NotifySubscription(context.Background(), "foo@example.com")
	var configErr *notifier.EmailConfigError
	assert.True(t, errors.As(err, &configErr))
}

func TestFlushPending_SecondFlushSendsNothing(t *testing.T) {
	articles := dueArticles(2)
	mailer := &recordingMailer{}
	s := newTestService(t, subscribersOf("a@example.com"), articles, mailer)

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, testNow, summary.CheckedAt)

	summary, err = s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Zero(t, summary.Skipped)
	assert.Equal(t, 2, mailer.sent())
}

func TestFlushPending_NotYetDue(t *testing.T) {
	articles := dueArticles(0)
	scheduled := testNow.Add(time.Hour)
	articles.rows = append(articles.rows, notifier.Article{
		ID:          "future",
		Title:       "Taller",
		IsActivity:  true,
		PublishedAt: testNow.Add(-time.Hour),
		ScheduledAt: &scheduled,
	})
	mailer := &recordingMailer{}
	s := newTestService(t, subscribersOf("a@example.com"), articles, mailer)

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Zero(t, mailer.sent())
}

func TestFlushPending_NoSubscribersLeavesRowsPending(t *testing.T) {
	articles := dueArticles(3)
	s := newTestService(t, subscribersOf(), articles, &recordingMailer{})

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 3, articles.unsent())
}

func TestFlushPending_FailedMarkIsSentAgain(t *testing.T) {
	articles := dueArticles(1)
	articles.markErr = errors.New("deadlock detected")
	mailer := &recordingMailer{}
	s := newTestService(t, subscribersOf("a@example.com"), articles, mailer)

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)

	articles.markErr = nil
	summary, err = s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 2, mailer.sent())
	assert.Zero(t, articles.unsent())
}

func TestFlushPending_BatchLimit(t *testing.T) {
	articles := dueArticles(25)
	mailer := &recordingMailer{}
	s := newTestService(t, subscribersOf("a@example.com"), articles, mailer)

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, summary.Sent)
	assert.Equal(t, 5, articles.unsent())

	// oldest first
	assert.Equal(t, "Nueva publicación: Artículo 0", mailer.messages[0].Subject)

	summary, err = s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Sent)
	assert.Zero(t, articles.unsent())
}

func TestFlushPending_Magazines(t *testing.T) {
	magazines := &fakeMagazines{rows: []notifier.Magazine{{ID: "m1", Title: "Número 1"}}}
	mailer := &recordingMailer{}
	s := newTestService(t, subscribersOf("a@example.com", "b@example.com"), dueArticles(0), mailer)
	s.Magazines = magazines

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Equal(t, 1, summary.MagazinesSent)
	assert.True(t, magazines.rows[0].NotifySent)
	require.Equal(t, 1, mailer.sent())
	assert.Equal(t, "Nueva revista: Número 1", mailer.messages[0].Subject)
	assert.NotContains(t, mailer.messages[0].Text, "Fecha de lanzamiento")
}

func TestFlushPending_WithoutDatabase(t *testing.T) {
	s := newTestService(t, nil, nil, &recordingMailer{})
	s.Articles = nil
	s.Magazines = nil

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Zero(t, summary.MagazinesSent)
}

func TestFlushPending_StoreErrorPropagates(t *testing.T) {
	articles := dueArticles(1)
	articles.pendErr = errors.New("relation \"articles\" does not exist")
	s := newTestService(t, subscribersOf("a@example.com"), articles, &recordingMailer{})

	summary, err := s.FlushPending(context.Background())
	assert.Error(t, err)
	assert.Nil(t, summary)
}

func TestFlushPending_ClaimFirst(t *testing.T) {
	articles := dueArticles(2)
	mailer := &recordingMailer{}
	s := newTestService(t, subscribersOf("a@example.com"), articles, mailer)
	s.Delivery = notifier.DeliveryClaimFirst

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, []string{"a00", "a01"}, articles.claimLog)
	assert.Zero(t, articles.unsent())
}

func TestFlushPending_ClaimFirstReleasesOnFailure(t *testing.T) {
	articles := dueArticles(1)
	mailer := &recordingMailer{err: errors.New("smtp down")}
	s := newTestService(t, subscribersOf("a@example.com"), articles, mailer)
	s.Delivery = notifier.DeliveryClaimFirst

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, articles.resets)
	assert.Equal(t, 1, articles.unsent())
}

func TestFlushPending_ClaimFirstSkipsClaimedRow(t *testing.T) {
	articles := new(mock.ArticleService)
	articles.On("Pending", tmock.Anything, DefaultBatchSize).Return([]notifier.Article{{ID: "a1", Title: "Nota"}}, nil)
	articles.On("MarkNotified", tmock.Anything, "a1").Return(false, nil)

	mailer := &recordingMailer{}
	s := newTestService(t, subscribersOf("a@example.com"), nil, mailer)
	s.Articles = articles
	s.Delivery = notifier.DeliveryClaimFirst

	summary, err := s.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, mailer.sent())
	articles.AssertNotCalled(t, "ResetNotified", tmock.Anything, tmock.Anything)
}
