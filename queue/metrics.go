package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "queue_jobs_enqueued_total",
	Help: "The total number of jobs enqueued",
}, []string{"topic"})

var jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "queue_jobs_processed_total",
	Help: "The total number of jobs acked",
}, []string{"topic"})

var jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "queue_jobs_failed_total",
	Help: "The total number of failed job attempts",
}, []string{"topic"})

var jobsDead = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "queue_jobs_dead_total",
	Help: "The total number of jobs moved to the dead state",
}, []string{"topic"})

var jobsPoisoned = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "queue_jobs_poisoned_total",
	Help: "The total number of poison jobs acked without retry",
}, []string{"topic"})

var jobsLeaseExpired = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "queue_jobs_lease_expired_total",
	Help: "The total number of jobs reclaimed after lease expiry",
}, []string{"topic"})

var jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "queue_job_duration_seconds",
	Help:    "Time spent processing a claimed job",
	Buckets: prometheus.ExponentialBuckets(0.01, 3, 8),
}, []string{"topic"})
