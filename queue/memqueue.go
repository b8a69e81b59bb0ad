package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemQueue is an in-memory implementation of the Queue interface with
// the same claim, retry, and dead-letter semantics as GormQueue. Used
// for tests and local development.
type MemQueue struct {
	lk   sync.Mutex
	jobs map[string][]*Job

	Ops           OpsSink
	LeaseDuration time.Duration
}

func NewMemQueue() *MemQueue {
	return &MemQueue{
		jobs:          make(map[string][]*Job),
		LeaseDuration: 2 * time.Minute,
	}
}

var _ Queue = (*MemQueue)(nil)

func (q *MemQueue) Enqueue(ctx context.Context, topic string, payload []byte, opts *EnqueueOptions) (string, error) {
	if opts == nil {
		opts = DefaultEnqueueOptions()
	}
	j := &Job{
		ID:          uuid.NewString(),
		Topic:       topic,
		Payload:     payload,
		MaxAttempts: opts.MaxAttempts,
		State:       StateEnqueued,
		CreatedAt:   time.Now(),
		backoffBase: int64(opts.Backoff.Base),
		backoffCap:  int64(opts.Backoff.Cap),
	}

	q.lk.Lock()
	defer q.lk.Unlock()
	q.jobs[topic] = append(q.jobs[topic], j)
	jobsEnqueued.WithLabelValues(topic).Inc()
	return j.ID, nil
}

func (q *MemQueue) Claim(ctx context.Context, topic string) (*Job, error) {
	now := time.Now()

	q.lk.Lock()
	defer q.lk.Unlock()

	for _, j := range q.jobs[topic] {
		claimable := j.State == StateEnqueued && (j.RetryAfter == nil || !j.RetryAfter.After(now))
		expired := j.State == StateInProgress && j.LeaseExpiry != nil && j.LeaseExpiry.Before(now)
		if !claimable && !expired {
			continue
		}
		j.State = StateInProgress
		lease := now.Add(q.LeaseDuration)
		j.LeaseExpiry = &lease
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (q *MemQueue) Ack(ctx context.Context, job *Job) error {
	q.lk.Lock()
	defer q.lk.Unlock()

	j := q.find(job.Topic, job.ID)
	if j == nil {
		return ErrJobNotFound
	}
	j.State = StateDone
	j.LeaseExpiry = nil
	job.State = StateDone
	jobsProcessed.WithLabelValues(job.Topic).Inc()
	return nil
}

func (q *MemQueue) Fail(ctx context.Context, job *Job, jobErr error) error {
	q.lk.Lock()
	j := q.find(job.Topic, job.ID)
	if j == nil {
		q.lk.Unlock()
		return ErrJobNotFound
	}

	j.Attempt++
	j.LastError = jobErr.Error()
	j.LeaseExpiry = nil

	dead := j.Attempt >= j.MaxAttempts
	if dead {
		j.State = StateDead
		jobsDead.WithLabelValues(job.Topic).Inc()
	} else {
		ra := time.Now().Add(j.backoffPolicy().Delay(j.Attempt))
		j.RetryAfter = &ra
		j.State = StateEnqueued
		retry := ra
		job.RetryAfter = &retry
	}
	job.Attempt = j.Attempt
	job.State = j.State
	job.LastError = j.LastError
	jobsFailed.WithLabelValues(job.Topic).Inc()
	q.lk.Unlock()

	if dead && q.Ops != nil {
		if err := q.Ops.Report(ctx, "job dead-lettered", map[string]string{
			"topic":    job.Topic,
			"jobID":    job.ID,
			"attempts": strconv.Itoa(job.Attempt),
			"error":    jobErr.Error(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (q *MemQueue) find(topic, id string) *Job {
	for _, j := range q.jobs[topic] {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// Jobs returns a snapshot of all jobs on a topic, for tests.
func (q *MemQueue) Jobs(topic string) []*Job {
	q.lk.Lock()
	defer q.lk.Unlock()

	out := make([]*Job, 0, len(q.jobs[topic]))
	for _, j := range q.jobs[topic] {
		cp := *j
		out = append(out, &cp)
	}
	return out
}
