package queue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormJob is the persisted row backing a queued job.
type GormJob struct {
	gorm.Model
	JobID       string `gorm:"uniqueIndex"`
	Topic       string `gorm:"index:idx_jobs_topic_state"`
	State       string `gorm:"index:idx_jobs_topic_state"`
	Payload     []byte
	Attempt     int
	MaxAttempts int
	BackoffBase int64
	BackoffCap  int64
	RetryAfter  *time.Time
	LeaseExpiry *time.Time
	LastError   string
}

func (dbj *GormJob) toJob() *Job {
	return &Job{
		ID:          dbj.JobID,
		Topic:       dbj.Topic,
		Payload:     dbj.Payload,
		Attempt:     dbj.Attempt,
		MaxAttempts: dbj.MaxAttempts,
		State:       dbj.State,
		RetryAfter:  dbj.RetryAfter,
		LeaseExpiry: dbj.LeaseExpiry,
		LastError:   dbj.LastError,
		CreatedAt:   dbj.CreatedAt,
		backoffBase: dbj.BackoffBase,
		backoffCap:  dbj.BackoffCap,
	}
}

// GormQueue is a gorm-backed implementation of the Queue interface.
// Single-owner claims are enforced with a compare-and-set UPDATE on the
// row state, so multiple workers and multiple processes can share one
// jobs table.
type GormQueue struct {
	db     *gorm.DB
	ops    OpsSink
	logger *slog.Logger

	// LeaseDuration bounds how long a claimed job stays invisible before
	// it is released for redelivery.
	LeaseDuration time.Duration
}

type GormQueueOptions struct {
	LeaseDuration time.Duration
	Ops           OpsSink
	Logger        *slog.Logger
}

func NewGormQueue(db *gorm.DB, opts *GormQueueOptions) *GormQueue {
	q := &GormQueue{
		db:            db,
		LeaseDuration: 2 * time.Minute,
		logger:        slog.Default(),
	}
	if opts != nil {
		if opts.LeaseDuration > 0 {
			q.LeaseDuration = opts.LeaseDuration
		}
		q.ops = opts.Ops
		if opts.Logger != nil {
			q.logger = opts.Logger
		}
	}
	return q
}

var _ Queue = (*GormQueue)(nil)

func (q *GormQueue) MigrateModels() error {
	return q.db.AutoMigrate(&GormJob{})
}

func (q *GormQueue) Enqueue(ctx context.Context, topic string, payload []byte, opts *EnqueueOptions) (string, error) {
	if opts == nil {
		opts = DefaultEnqueueOptions()
	}
	dbj := &GormJob{
		JobID:       uuid.NewString(),
		Topic:       topic,
		State:       StateEnqueued,
		Payload:     payload,
		MaxAttempts: opts.MaxAttempts,
		BackoffBase: int64(opts.Backoff.Base),
		BackoffCap:  int64(opts.Backoff.Cap),
	}
	if err := q.db.WithContext(ctx).Create(dbj).Error; err != nil {
		return "", err
	}
	jobsEnqueued.WithLabelValues(topic).Inc()
	return dbj.JobID, nil
}

func (q *GormQueue) Claim(ctx context.Context, topic string) (*Job, error) {
	now := time.Now()

	// Optimistic claim: pick a candidate, then take ownership with a
	// conditional UPDATE. A lost race just means another worker got the
	// row first; try the next candidate.
	for i := 0; i < 3; i++ {
		var dbj GormJob
		err := q.db.WithContext(ctx).
			Where("topic = ?", topic).
			Where("(state = ? AND (retry_after IS NULL OR retry_after <= ?)) OR (state = ? AND lease_expiry <= ?)",
				StateEnqueued, now, StateInProgress, now).
			Order("id").
			First(&dbj).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}

		lease := now.Add(q.LeaseDuration)
		res := q.db.WithContext(ctx).Model(&GormJob{}).
			Where("id = ? AND state = ? AND updated_at = ?", dbj.ID, dbj.State, dbj.UpdatedAt).
			Updates(map[string]any{"state": StateInProgress, "lease_expiry": lease})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		if dbj.State == StateInProgress {
			q.logger.Warn("reclaiming job with expired lease", "topic", topic, "jobID", dbj.JobID, "attempt", dbj.Attempt)
			jobsLeaseExpired.WithLabelValues(topic).Inc()
		}

		dbj.State = StateInProgress
		dbj.LeaseExpiry = &lease
		return dbj.toJob(), nil
	}
	return nil, nil
}

func (q *GormQueue) Ack(ctx context.Context, job *Job) error {
	res := q.db.WithContext(ctx).Model(&GormJob{}).
		Where("job_id = ?", job.ID).
		Updates(map[string]any{"state": StateDone, "lease_expiry": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	job.State = StateDone
	jobsProcessed.WithLabelValues(job.Topic).Inc()
	return nil
}

func (q *GormQueue) Fail(ctx context.Context, job *Job, jobErr error) error {
	attempt := job.Attempt + 1
	updates := map[string]any{
		"attempt":      attempt,
		"last_error":   jobErr.Error(),
		"lease_expiry": nil,
	}

	dead := attempt >= job.MaxAttempts
	if dead {
		updates["state"] = StateDead
	} else {
		ra := time.Now().Add(job.backoffPolicy().Delay(attempt))
		updates["state"] = StateEnqueued
		updates["retry_after"] = ra
		retry := ra
		job.RetryAfter = &retry
	}

	res := q.db.WithContext(ctx).Model(&GormJob{}).Where("job_id = ?", job.ID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}

	job.Attempt = attempt
	job.LastError = jobErr.Error()
	jobsFailed.WithLabelValues(job.Topic).Inc()
	if dead {
		job.State = StateDead
		jobsDead.WithLabelValues(job.Topic).Inc()
		q.logger.Error("job exhausted retry budget", "topic", job.Topic, "jobID", job.ID, "attempts", attempt, "err", jobErr)
		q.reportDead(ctx, job, jobErr)
	} else {
		job.State = StateEnqueued
	}
	return nil
}

func (q *GormQueue) reportDead(ctx context.Context, job *Job, jobErr error) {
	if q.ops == nil {
		return
	}
	if err := q.ops.Report(ctx, "job dead-lettered", map[string]string{
		"topic":    job.Topic,
		"jobID":    job.ID,
		"attempts": strconv.Itoa(job.Attempt),
		"error":    jobErr.Error(),
	}); err != nil {
		q.logger.Error("failed to report dead job", "err", err, "jobID", job.ID)
	}
}
