package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	CycleCount           prometheus.Counter
	EmailsIngested       prometheus.Counter
	SpamFiltered         prometheus.Counter
	DraftsGenerated      prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationsDeduped prometheus.Counter
	CommandsProcessed    prometheus.Counter
	ProcessingErrors     prometheus.Counter
	CycleDuration        prometheus.Histogram
	AwaitingApproval     prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		CycleCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "email_ai_manager_cycle_count",
			Help: "Total number of processing cycles run",
		}),
		EmailsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "email_ai_manager_emails_ingested",
			Help: "Total number of emails ingested from mailboxes",
		}),
		SpamFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "email_ai_manager_spam_filtered",
			Help: "Total number of emails filtered as hard spam",
		}),
		DraftsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "email_ai_manager_drafts_generated",
			Help: "Total number of reply drafts generated",
		}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "email_ai_manager_notifications_sent",
			Help: "Total number of chat notifications posted",
		}),
		NotificationsDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "email_ai_manager_notifications_deduped",
			Help: "Total number of notifications collapsed into existing messages",
		}),
		CommandsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "email_ai_manager_commands_processed",
			Help: "Total number of user commands dispatched",
		}),
		ProcessingErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "email_ai_manager_processing_errors",
			Help: "Total number of per-email processing failures",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "email_ai_manager_cycle_duration_seconds",
			Help:    "Time spent running one full processing cycle",
			Buckets: prometheus.DefBuckets,
		}),
		AwaitingApproval: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "email_ai_manager_awaiting_approval",
			Help: "Number of emails currently awaiting user approval",
		}),
	}
}
