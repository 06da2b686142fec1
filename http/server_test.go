package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/divanjapones/notifier"
	"github.com/divanjapones/notifier/metrics"
	"github.com/divanjapones/notifier/mock"
	"github.com/divanjapones/notifier/notification"
	"github.com/divanjapones/notifier/pkg/hash"
)

var (
	cfg *notifier.Config
	s   *Server
)

func TestMain(m *testing.M) {
	viper.SetConfigType("yaml")
	var yamlConfig = []byte(`
newsletter:
  hmac:
    secret: da02e221bc331c9875c5e1299fa8d765
`)
	if err := viper.ReadConfig(bytes.NewBuffer(yamlConfig)); err != nil {
		log.Fatal(err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal(err)
	}

	var err error
	s, err = NewServer(zerolog.Nop())
	if err != nil {
		log.Fatal(err)
	}
	s.HMACSecret = cfg.Newsletter.HMAC.Secret

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
	s.Gatherer = registry

	os.Exit(m.Run())
}

func serve(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestSubscribeHandler(t *testing.T) {
	email := "foo@gmail.com"
	subscriber := &notifier.Subscriber{ID: "s1", Email: email, CreatedAt: time.Now()}

	subscriberService := new(mock.SubscriberService)
	subscriberService.On("Subscribe", tmock.Anything, email).Return(subscriber, true, nil)

	queueService := new(mock.QueueService)
	queueService.On("Publish", tmock.Anything, notifier.TopicWelcome, []byte(`{"email":"foo@gmail.com"}`)).Return(nil)

	s.SubscriberService = subscriberService
	s.QueueService = queueService

	w := serve(t, http.MethodPost, "/api/newsletter/subscribe", &notifier.SubscriptionRequest{Email: "  Foo@Gmail.com "})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp notifier.SubscriptionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.OK)
	require.NotNil(t, resp.Subscriber)
	assert.Equal(t, email, resp.Subscriber.Email)
	assert.Empty(t, resp.Message)

	subscriberService.AssertExpectations(t)
	queueService.AssertExpectations(t)
}

func TestSubscribeHandler_RepeatSubscriber(t *testing.T) {
	email := "foo@gmail.com"

	subscriberService := new(mock.SubscriberService)
	subscriberService.On("Subscribe", tmock.Anything, email).Return(&notifier.Subscriber{ID: "s1", Email: email}, false, nil)

	queueService := new(mock.QueueService)
	queueService.On("Publish", tmock.Anything, notifier.TopicWelcome, tmock.Anything).Return(fmt.Errorf("queue is full"))

	s.SubscriberService = subscriberService
	s.QueueService = queueService

	w := serve(t, http.MethodPost, "/api/newsletter/subscribe", &notifier.SubscriptionRequest{Email: email})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp notifier.SubscriptionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.OK)
	assert.Equal(t, alreadySubscribedMessage, resp.Message)
	queueService.AssertExpectations(t)
}

func TestSubscribeHandler_EmailRequired(t *testing.T) {
	subscriberService := new(mock.SubscriberService)
	s.SubscriberService = subscriberService

	w := serve(t, http.MethodPost, "/api/newsletter/subscribe", &notifier.SubscriptionRequest{Email: "   "})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `El campo "email" es requerido`, decodeError(t, w))
	subscriberService.AssertNotCalled(t, "Subscribe", tmock.Anything, tmock.Anything)
}

func TestSubscribeHandler_NoDatabase(t *testing.T) {
	s.SubscriberService = nil
	defer func() { s.SubscriberService = nil }()

	w := serve(t, http.MethodPost, "/api/newsletter/subscribe", &notifier.SubscriptionRequest{Email: "foo@gmail.com"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Database connection is not initialized", decodeError(t, w))
}

func TestListSubscribersHandler(t *testing.T) {
	subscriberService := new(mock.SubscriberService)
	subscriberService.On("List", tmock.Anything).Return([]notifier.Subscriber{
		{ID: "s2", Email: "b@example.com"},
		{ID: "s1", Email: "a@example.com"},
	}, nil)
	s.SubscriberService = subscriberService

	w := serve(t, http.MethodGet, "/api/newsletter/subscribers", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var subscribers []notifier.Subscriber
	require.NoError(t, json.NewDecoder(w.Body).Decode(&subscribers))
	require.Len(t, subscribers, 2)
	assert.Equal(t, "b@example.com", subscribers[0].Email)

	s.SubscriberService = nil
	w = serve(t, http.MethodGet, "/api/newsletter/subscribers", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUnsubscribeHandler(t *testing.T) {
	email := "foo@gmail.com"
	hashValue, err := hash.ComputeHmac256(email, cfg.Newsletter.HMAC.Secret)
	require.NoError(t, err)

	subscriberService := new(mock.SubscriberService)
	subscriberService.On("Unsubscribe", tmock.Anything, email).Return(nil)
	s.SubscriberService = subscriberService

	w := serve(t, http.MethodGet, fmt.Sprintf("/api/newsletter/unsubscribe?email=%s&hash=%s", url.QueryEscape(email), hashValue), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.OK)
	assert.Equal(t, unsubscribeMessage, resp.Message)
	subscriberService.AssertExpectations(t)
}

func TestUnsubscribeHandler_InvalidHash(t *testing.T) {
	subscriberService := new(mock.SubscriberService)
	s.SubscriberService = subscriberService

	w := serve(t, http.MethodGet, "/api/newsletter/unsubscribe?email=foo%40gmail.com&hash=bogus", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	subscriberService.AssertNotCalled(t, "Unsubscribe", tmock.Anything, tmock.Anything)
}

func TestUnsubscribeHandler_NotFound(t *testing.T) {
	email := "gone@gmail.com"
	hashValue, err := hash.ComputeHmac256(email, cfg.Newsletter.HMAC.Secret)
	require.NoError(t, err)

	subscriberService := new(mock.SubscriberService)
	subscriberService.On("Unsubscribe", tmock.Anything, email).
		Return(&notifier.Error{Code: notifier.ErrNotFound, Message: "Subscriber not found"})
	s.SubscriberService = subscriberService

	w := serve(t, http.MethodGet, fmt.Sprintf("/api/newsletter/unsubscribe?email=%s&hash=%s", url.QueryEscape(email), hashValue), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Subscriber not found", decodeError(t, w))
}

func TestFlushPendingHandler(t *testing.T) {
	checkedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	flusher := new(mock.Flusher)
	flusher.On("Flush", tmock.Anything).Return(&notifier.FlushSummary{
		Sent:          2,
		MagazinesSent: 1,
		Skipped:       3,
		CheckedAt:     checkedAt,
	}, nil)
	s.Flusher = flusher

	w := serve(t, http.MethodPost, "/api/notifications/flush-pending", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sent":2,"magazinesSent":1,"skipped":3,"checkedAt":"2025-03-01T12:00:00Z"}`, w.Body.String())
}

func TestFlushPendingHandler_Errors(t *testing.T) {
	flusher := new(mock.Flusher)
	flusher.On("Flush", tmock.Anything).Return(nil, notifier.ErrFlushInProgress).Once()
	flusher.On("Flush", tmock.Anything).Return(nil, fmt.Errorf("connection reset by peer")).Once()
	s.Flusher = flusher

	w := serve(t, http.MethodPost, "/api/notifications/flush-pending", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, notifier.ErrFlushInProgress.Message, decodeError(t, w))

	w = serve(t, http.MethodPost, "/api/notifications/flush-pending", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "connection reset by peer", decodeError(t, w))
}

func TestFlushPendingHandler_NoDatabase(t *testing.T) {
	checkedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	service := &notification.Service{
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return checkedAt },
	}
	s.Flusher = notification.NewScheduler(service, &notifier.Config{}, zerolog.Nop())

	w := serve(t, http.MethodPost, "/api/notifications/flush-pending", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sent":0,"magazinesSent":0,"skipped":0,"checkedAt":"2025-03-01T12:00:00Z"}`, w.Body.String())
}

func TestCreateArticleHandler(t *testing.T) {
	articleService := new(mock.ArticleService)
	articleService.On("Create", tmock.Anything, tmock.MatchedBy(func(a *notifier.Article) bool {
		return a.Title == "Ciclo de cine" &&
			a.ImageURL == "https://cdn.example.com/a.jpg" &&
			a.IsActivity && a.Type == notifier.TypeActivity &&
			!a.NotifySent && a.ID != ""
	})).Return(&notifier.Article{ID: "a1", Title: "Ciclo de cine", Type: notifier.TypeActivity}, nil)
	s.ArticleService = articleService

	w := serve(t, http.MethodPost, "/api/articles", map[string]interface{}{
		"title":        "Ciclo de cine",
		"image_url":    "https://cdn.example.com/a.jpg",
		"scheduled_at": "2025-03-01T20:00:00Z",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	articleService.AssertExpectations(t)
}

func TestCreateArticleHandler_TitleRequired(t *testing.T) {
	articleService := new(mock.ArticleService)
	s.ArticleService = articleService

	w := serve(t, http.MethodPost, "/api/articles", map[string]interface{}{"excerpt": "sin título"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	articleService.AssertNotCalled(t, "Create", tmock.Anything, tmock.Anything)
}

func TestMagazineHandlers(t *testing.T) {
	magazineService := new(mock.MagazineService)
	magazineService.On("Create", tmock.Anything, tmock.MatchedBy(func(m *notifier.Magazine) bool {
		return m.PDFSource == "https://cdn.example.com/n3.pdf" &&
			m.CoverImage == "https://cdn.example.com/n3.jpg" &&
			m.ReleaseDate != nil && m.ReleaseDate.Day() == 1
	})).Return(&notifier.Magazine{ID: "m1", Title: "Número 3"}, nil)
	magazineService.On("List", tmock.Anything).Return(nil, nil)
	s.MagazineService = magazineService

	w := serve(t, http.MethodPost, "/api/magazines", map[string]interface{}{
		"title":       "Número 3",
		"pdfUrl":      "https://cdn.example.com/n3.pdf",
		"coverUrl":    "https://cdn.example.com/n3.jpg",
		"releaseDate": "2025-04-01",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = serve(t, http.MethodGet, "/api/magazines", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = serve(t, http.MethodPost, "/api/magazines", map[string]interface{}{
		"title":       "Número 4",
		"releaseDate": "pronto",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	magazineService.AssertExpectations(t)
}

func TestHealthAndMetrics(t *testing.T) {
	w := serve(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	metrics.NotificationsSent.WithLabelValues("article").Inc()
	w = serve(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notifier_notifications_sent_total")
}
