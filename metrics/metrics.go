package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_notifications_sent_total",
		Help: "Broadcast notifications delivered, by content kind",
	}, []string{"kind"})
	NotificationsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_notifications_skipped_total",
		Help: "Rows left pending after a failed broadcast, by content kind",
	}, []string{"kind"})
	WelcomeEmails = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_welcome_emails_total",
		Help: "Welcome emails by outcome",
	}, []string{"status"})
	FlushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notifier_flush_duration_seconds",
		Help:    "Duration of one pending-notification flush",
		Buckets: prometheus.DefBuckets,
	})
	FlushRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_flush_runs_total",
		Help: "Flush runs by trigger and outcome",
	}, []string{"trigger", "status"})
)

// MustRegister registers the notifier metrics.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NotificationsSent,
		NotificationsSkipped,
		WelcomeEmails,
		FlushDuration,
		FlushRuns,
	)
}
