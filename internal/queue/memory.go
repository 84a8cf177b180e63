package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Memory is an in-process queue with bounded retries and linear backoff.
// Jobs published before Consume is called wait in the buffer.
type Memory struct {
	jobs       chan SendJob
	maxRetries int
	backoff    time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewMemory creates a queue holding up to size pending jobs.
func NewMemory(size, maxRetries int, backoff time.Duration) *Memory {
	if size <= 0 {
		size = 1024
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Memory{
		jobs:       make(chan SendJob, size),
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

func (q *Memory) Publish(ctx context.Context, job SendJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume runs each job on its own goroutine and returns when ctx is done,
// after in-flight jobs finish.
func (q *Memory) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			q.wg.Wait()
			return nil
		case job, ok := <-q.jobs:
			if !ok {
				q.wg.Wait()
				return nil
			}
			q.wg.Add(1)
			go func() {
				defer q.wg.Done()
				q.process(ctx, h, job)
			}()
		}
	}
}

func (q *Memory) process(ctx context.Context, h Handler, job SendJob) {
	for {
		err := h(ctx, job)
		if err == nil {
			return
		}
		job.Attempt++
		if IsPermanent(err) || job.Attempt > q.maxRetries {
			logger.Error("[queue.Memory] job dropped",
				"job_id", job.ID,
				"campaign_id", job.CampaignID,
				"attempts", job.Attempt,
				"error", err)
			return
		}
		logger.Warn("[queue.Memory] job failed, retrying",
			"job_id", job.ID,
			"attempt", job.Attempt,
			"error", err)
		select {
		case <-time.After(time.Duration(job.Attempt) * q.backoff):
		case <-ctx.Done():
			return
		}
	}
}

// Close stops accepting jobs. Pending jobs are still delivered to an active
// consumer.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
