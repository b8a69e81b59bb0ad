package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var moderationSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_jobs_skipped_total",
	Help: "Number of moderation jobs skipped (too short or unanalyzable)",
})

var moderationClean = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_jobs_clean_total",
	Help: "Number of moderation jobs with a clean verdict",
})

var moderationFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_content_flagged_total",
	Help: "Number of flags created by the moderation worker",
}, []string{"content_kind"})

var adminActionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_admin_actions_applied_total",
	Help: "Number of admin decisions that transitioned a flag",
}, []string{"action"})

var notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_notifications_sent_total",
	Help: "Number of notifications dispatched to the mail transport",
}, []string{"kind"})

var notificationsLost = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_notifications_lost_total",
	Help: "Number of notifications dropped because their enqueue failed after the flag write committed",
}, []string{"kind"})

var notificationsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_notifications_suppressed_total",
	Help: "Number of notifications dropped because the recipient opted out",
})
