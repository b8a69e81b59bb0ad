package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("queue")

// Handler processes one claimed job. Returning nil acks the job; an
// error wrapping ErrPoisonJob acks it and reports to the ops sink; any
// other error fails the job for retry with backoff.
type Handler func(ctx context.Context, job *Job) error

type WorkerConfig struct {
	// Number of jobs to process in parallel.
	Concurrency int
	// Max claims per second, to protect downstream providers. Zero
	// disables throttling.
	ClaimsPerSecond int
	// A handler running past this deadline is failed and the job
	// released for redelivery.
	HandlerTimeout time.Duration
	// How long to wait before polling again when the topic is empty.
	PollInterval time.Duration
}

func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Concurrency:    4,
		HandlerTimeout: 30 * time.Second,
		PollInterval:   time.Second,
	}
}

// Worker is a pull-based consumer for a single topic: claim, dispatch
// to the handler under a bounded semaphore, then ack or fail.
type Worker struct {
	Topic   string
	Handler Handler

	queue   Queue
	ops     OpsSink
	logger  *slog.Logger
	cfg     *WorkerConfig
	limiter *rate.Limiter

	stop chan chan struct{}
}

func NewWorker(topic string, q Queue, handler Handler, ops OpsSink, logger *slog.Logger, cfg *WorkerConfig) *Worker {
	if cfg == nil {
		cfg = DefaultWorkerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.ClaimsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ClaimsPerSecond), 1)
	}

	return &Worker{
		Topic:   topic,
		Handler: handler,
		queue:   q,
		ops:     ops,
		logger:  logger.With("source", "queue_worker", "topic", topic),
		cfg:     cfg,
		limiter: limiter,
		stop:    make(chan chan struct{}, 1),
	}
}

// Start runs the claim loop until Stop is called.
func (w *Worker) Start() {
	ctx := context.Background()
	w.logger.Info("starting worker")

	sem := semaphore.NewWeighted(int64(w.cfg.Concurrency))

	for {
		select {
		case stopped := <-w.stop:
			w.logger.Info("stopping worker")
			sem.Acquire(ctx, int64(w.cfg.Concurrency))
			close(stopped)
			return
		default:
		}

		if w.limiter != nil {
			w.limiter.Wait(ctx)
		}

		job, err := w.queue.Claim(ctx, w.Topic)
		if err != nil {
			w.logger.Error("failed to claim job", "err", err)
			time.Sleep(w.cfg.PollInterval)
			continue
		} else if job == nil {
			time.Sleep(w.cfg.PollInterval)
			continue
		}

		sem.Acquire(ctx, 1)
		go func(j *Job) {
			defer sem.Release(1)
			w.Process(ctx, j)
		}(job)
	}
}

// Stop drains in-flight jobs and shuts down the claim loop.
func (w *Worker) Stop(ctx context.Context) error {
	stopped := make(chan struct{})
	w.stop <- stopped
	select {
	case <-stopped:
		w.logger.Info("worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs the handler for one claimed job and settles it with the
// queue. Exposed so tests can drive a worker without the claim loop.
func (w *Worker) Process(ctx context.Context, job *Job) {
	ctx, span := tracer.Start(ctx, "Worker.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.topic", job.Topic),
		attribute.String("job.id", job.ID),
		attribute.Int("job.attempt", job.Attempt),
	)

	log := w.logger.With("jobID", job.ID)
	if job.Attempt > 0 {
		log = log.With("attempt", job.Attempt)
	}

	start := time.Now()
	hctx := ctx
	var cancel context.CancelFunc
	if w.cfg.HandlerTimeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, w.cfg.HandlerTimeout)
		defer cancel()
	}

	err := w.runHandler(hctx, job)
	jobDuration.WithLabelValues(w.Topic).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		if ackErr := w.queue.Ack(ctx, job); ackErr != nil {
			log.Error("failed to ack job", "err", ackErr)
		}
	case errors.Is(err, ErrPoisonJob):
		log.Warn("poison job, acking without retry", "err", err)
		jobsPoisoned.WithLabelValues(w.Topic).Inc()
		w.reportPoison(ctx, job, err)
		if ackErr := w.queue.Ack(ctx, job); ackErr != nil {
			log.Error("failed to ack poison job", "err", ackErr)
		}
	default:
		log.Warn("job failed", "err", err)
		if failErr := w.queue.Fail(ctx, job, err); failErr != nil {
			log.Error("failed to record job failure", "err", failErr)
		}
	}
}

func (w *Worker) runHandler(ctx context.Context, job *Job) (err error) {
	// recover panics from handler execution, same as an HTTP server
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.Handler(ctx, job)
}

func (w *Worker) reportPoison(ctx context.Context, job *Job, jobErr error) {
	if w.ops == nil {
		return
	}
	if err := w.ops.Report(ctx, "poison job acked", map[string]string{
		"topic": job.Topic,
		"jobID": job.ID,
		"error": jobErr.Error(),
	}); err != nil {
		w.logger.Error("failed to report poison job", "err", err, "jobID", job.ID)
	}
}
