package queue

import (
	"context"
	"errors"
	"time"
)

// Topics consumed by the moderation pipeline workers.
const (
	TopicModeration   = "moderation"
	TopicNotification = "notification"
	TopicAdminAction  = "admin-action"
)

var (
	// StateEnqueued is the state of a job that is claimable (including
	// jobs waiting out a retry backoff).
	StateEnqueued = "enqueued"
	// StateInProgress is the state of a job currently owned by a worker.
	StateInProgress = "in_progress"
	// StateDone is the terminal state of a successfully acked job.
	StateDone = "done"
	// StateDead is the terminal state of a job that exhausted its retry
	// budget. Dead jobs are reported to the ops sink, never retried.
	StateDead = "dead"
)

// ErrJobNotFound is returned when acking or failing a job the queue
// does not know about.
var ErrJobNotFound = errors.New("job not found")

// ErrPoisonJob marks a job whose payload can never succeed regardless
// of retries. Handlers wrap it; the worker acks the job and reports it
// to the ops sink instead of burning the retry budget.
var ErrPoisonJob = errors.New("poison job")

// Job is a claimed unit of work. The queue owns it until a worker
// claims it; ownership returns to the queue on Fail and ends on Ack.
type Job struct {
	ID          string
	Topic       string
	Payload     []byte
	Attempt     int
	MaxAttempts int
	State       string
	RetryAfter  *time.Time
	LeaseExpiry *time.Time
	LastError   string
	CreatedAt   time.Time

	// backoff parameters travel with the job so per-enqueue policies
	// survive redelivery; zero values fall back to the defaults.
	backoffBase int64
	backoffCap  int64
}

func (j *Job) backoffPolicy() BackoffPolicy {
	p := BackoffPolicy{Base: time.Duration(j.backoffBase), Cap: time.Duration(j.backoffCap)}
	if p.Base == 0 {
		p.Base = time.Second
	}
	if p.Cap == 0 {
		p.Cap = 5 * time.Minute
	}
	return p
}

// BackoffPolicy computes the delay before a failed job becomes
// claimable again: Base << (attempt-1), capped at Cap.
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base << uint(attempt-1)
	if d <= 0 || (p.Cap > 0 && d > p.Cap) {
		d = p.Cap
	}
	return d
}

type EnqueueOptions struct {
	MaxAttempts int
	Backoff     BackoffPolicy
}

func DefaultEnqueueOptions() *EnqueueOptions {
	return &EnqueueOptions{
		MaxAttempts: 3,
		Backoff: BackoffPolicy{
			Base: time.Second,
			Cap:  5 * time.Minute,
		},
	}
}

// Queue is a durable, at-least-once work queue with named topics.
// Redelivery after a crash or lease expiry is expected; handlers must
// be idempotent or side-effect-checked.
type Queue interface {
	Enqueue(ctx context.Context, topic string, payload []byte, opts *EnqueueOptions) (string, error)
	// Claim returns the next claimable job for the topic, or nil when
	// none is ready. A claimed job is owned by exactly one worker until
	// its lease expires.
	Claim(ctx context.Context, topic string) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	// Fail records a failed attempt: the job is rescheduled with backoff,
	// or moved to the dead state once its retry budget is exhausted.
	Fail(ctx context.Context, job *Job, jobErr error) error
}

// OpsSink receives events that need operator attention: dead-lettered
// jobs, poison payloads, invariant violations. Implementations live in
// the notifier package.
type OpsSink interface {
	Report(ctx context.Context, event string, fields map[string]string) error
}
