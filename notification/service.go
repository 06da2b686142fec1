package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/divanjapones/notifier"
	"github.com/divanjapones/notifier/metrics"
)

const (
	DefaultBatchSize = 20

	ReasonNoSubscribers = "No subscribers to notify"

	kindArticle  = "article"
	kindMagazine = "magazine"
)

// notifiedMarker is the part of the article and magazine stores the flush writes to.
type notifiedMarker interface {
	MarkNotified(ctx context.Context, id string) (bool, error)
	ResetNotified(ctx context.Context, id string) error
}

// Service dispatches notifications and flushes pending content.
// Articles and Magazines may be nil when no database is configured.
type Service struct {
	Subscribers notifier.SubscriberService
	Articles    notifier.ArticleService
	Magazines   notifier.MagazineService
	Mailer      notifier.Mailer
	Composer    *Composer

	BatchSize int
	Delivery  string

	Logger zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// DispatchBroadcast sends one email with every subscriber in Bcc. It never returns an error.
func (s *Service) DispatchBroadcast(ctx context.Context, p notifier.Payload) notifier.Result {
	if s.Subscribers == nil {
		return notifier.Result{Reason: ReasonNoSubscribers}
	}

	subscribers, err := s.Subscribers.List(ctx)
	if err != nil {
		s.Logger.Error().Err(err).Msg("Failed to list subscribers")
		return notifier.Result{Error: err.Error()}
	}
	if len(subscribers) == 0 {
		return notifier.Result{Reason: ReasonNoSubscribers}
	}

	bcc := make([]string, 0, len(subscribers))
	for _, sub := range subscribers {
		bcc = append(bcc, sub.Email)
	}

	if _, err := s.Mailer.SendEmail(ctx, &notifier.Message{
		Subject: p.Subject,
		HTML:    p.HTML,
		Text:    p.Text,
		Bcc:     bcc,
	}); err != nil {
		s.Logger.Error().Err(err).Str("subject", p.Subject).Msg("Failed to send newsletter email")
		return notifier.Result{Error: err.Error()}
	}

	return notifier.Result{Sent: true, Count: len(bcc)}
}

// DispatchWelcome sends p to a single address
func (s *Service) DispatchWelcome(ctx context.Context, email string, p notifier.Payload) error {
	_, err := s.Mailer.SendEmail(ctx, &notifier.Message{
		Subject: p.Subject,
		HTML:    p.HTML,
		Text:    p.Text,
		To:      email,
	})
	return err
}

// NotifySubscription welcomes a new or returning subscriber
func (s *Service) NotifySubscription(ctx context.Context, email string) error {
	if err := s.DispatchWelcome(ctx, email, s.Composer.Welcome(email)); err != nil {
		metrics.WelcomeEmails.WithLabelValues("failed").Inc()
		return err
	}
	metrics.WelcomeEmails.WithLabelValues("sent").Inc()
	return nil
}

// FlushPending broadcasts every due, unsent article and magazine, up to BatchSize of each.
// Rows that fail stay unmarked for the next run. Store query errors are returned.
func (s *Service) FlushPending(ctx context.Context) (*notifier.FlushSummary, error) {
	summary := &notifier.FlushSummary{CheckedAt: s.now()}

	if s.Articles != nil {
		articles, err := s.Articles.Pending(ctx, s.batchSize())
		if err != nil {
			return nil, err
		}
		for i := range articles {
			a := &articles[i]
			if s.deliver(ctx, kindArticle, a.ID, s.Articles, s.Composer.Article(a)) {
				summary.Sent++
			} else {
				summary.Skipped++
			}
		}
	}

	if s.Magazines != nil {
		magazines, err := s.Magazines.Pending(ctx, s.batchSize())
		if err != nil {
			return nil, err
		}
		for i := range magazines {
			m := &magazines[i]
			if s.deliver(ctx, kindMagazine, m.ID, s.Magazines, s.Composer.Magazine(m)) {
				summary.MagazinesSent++
			} else {
				summary.Skipped++
			}
		}
	}

	return summary, nil
}

func (s *Service) deliver(ctx context.Context, kind, id string, store notifiedMarker, p notifier.Payload) bool {
	logger := s.Logger.With().Str(kind+"_id", id).Logger()
	claimFirst := s.Delivery == notifier.DeliveryClaimFirst

	if claimFirst {
		claimed, err := store.MarkNotified(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to claim row, leaving it for the next flush")
			metrics.NotificationsSkipped.WithLabelValues(kind).Inc()
			return false
		}
		if !claimed {
			logger.Info().Msg("Row already claimed by another flush")
			metrics.NotificationsSkipped.WithLabelValues(kind).Inc()
			return false
		}
	}

	result := s.DispatchBroadcast(ctx, p)
	if !result.Sent {
		reason := result.Error
		if reason == "" {
			reason = result.Reason
		}
		logger.Warn().Str("reason", reason).Msg("Notification not sent, leaving row pending")
		metrics.NotificationsSkipped.WithLabelValues(kind).Inc()

		if claimFirst {
			if err := store.ResetNotified(ctx, id); err != nil {
				logger.Error().Err(err).Msg("Failed to release claim, row will not be retried")
			}
		}
		return false
	}

	if !claimFirst {
		if _, err := store.MarkNotified(ctx, id); err != nil {
			logger.Error().Err(err).Msg("Notification sent but row not marked, it will be sent again")
		}
	}

	logger.Info().Int("recipients", result.Count).Msg("Notification sent")
	metrics.NotificationsSent.WithLabelValues(kind).Inc()
	return true
}
