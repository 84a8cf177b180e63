package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/service/sending"
)

// Executor runs the send pipeline for one job. Satisfied by
// *campaign.Service.
type Executor interface {
	ExecuteSend(ctx context.Context, job queue.SendJob) (*sending.Barrier, error)
}

// SendWorker consumes send jobs and runs each blast to completion. A blast
// is executed by at most one worker at a time across the cluster.
type SendWorker struct {
	queue    queue.Queue
	exec     Executor
	locker   distlock.Locker
	workerID string

	slots   chan struct{}
	lockTTL time.Duration

	// Stats
	processed int64
	failed    int64
	skipped   int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewSendWorker runs up to concurrency blasts at once. lockTTL bounds how
// long a crashed worker can hold a blast.
func NewSendWorker(q queue.Queue, exec Executor, locker distlock.Locker, concurrency int, lockTTL time.Duration) *SendWorker {
	if concurrency <= 0 {
		concurrency = 4
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	host, _ := os.Hostname()
	return &SendWorker{
		queue:    q,
		exec:     exec,
		locker:   locker,
		workerID: fmt.Sprintf("send-%s-%d", host, time.Now().UnixNano()%10000),
		slots:    make(chan struct{}, concurrency),
		lockTTL:  lockTTL,
	}
}

// Start begins consuming.
func (w *SendWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("send worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	logger.Info("[SendWorker] starting", "worker_id", w.workerID, "concurrency", cap(w.slots))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.queue.Consume(w.ctx, w.Handle); err != nil {
			logger.Error("[SendWorker] consumer stopped", "error", err)
		}
	}()
	return nil
}

// Stop stops taking new jobs and waits for running blasts to finish.
func (w *SendWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	logger.Info("[SendWorker] stopping", "worker_id", w.workerID)
	w.cancel()
	w.wg.Wait()
	p, f, s := w.Stats()
	logger.Info("[SendWorker] stopped", "processed", p, "failed", f, "skipped", s)
}

// Stats returns processed, failed and skipped job counts.
func (w *SendWorker) Stats() (processed, failed, skipped int64) {
	return atomic.LoadInt64(&w.processed), atomic.LoadInt64(&w.failed), atomic.LoadInt64(&w.skipped)
}

// Handle runs one job. Errors that retrying cannot fix are marked
// permanent so the queue drops the job.
func (w *SendWorker) Handle(ctx context.Context, job queue.SendJob) error {
	select {
	case w.slots <- struct{}{}:
		defer func() { <-w.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	lock := w.locker.Lock("send:"+job.BlastID, w.lockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		return fmt.Errorf("lock blast %s: %w", job.BlastID, err)
	}
	if !acquired {
		// Another worker holds this blast and will settle it.
		atomic.AddInt64(&w.skipped, 1)
		logger.Info("[SendWorker] blast already running elsewhere", "job_id", job.ID, "blast_id", job.BlastID)
		return nil
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("[SendWorker] lock release failed", "blast_id", job.BlastID, "error", err)
		}
	}()

	start := time.Now()
	barrier, err := w.exec.ExecuteSend(ctx, job)
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		if k := apperr.KindOf(err); k == apperr.KindNotFound || k == apperr.KindInvalidUsage || k == apperr.KindForbidden {
			return queue.Permanent(err)
		}
		return err
	}

	// The dispatch runs to completion regardless of shutdown; the lock is
	// held until it has.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.lockTTL)
	defer cancel()
	results, err := barrier.Wait(waitCtx)
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		logger.Error("[SendWorker] blast did not settle", "blast_id", job.BlastID, "error", err)
		return queue.Permanent(err)
	}

	atomic.AddInt64(&w.processed, 1)
	logger.Info("[SendWorker] blast settled",
		"job_id", job.ID,
		"campaign_id", job.CampaignID,
		"blast_id", job.BlastID,
		"recipients", len(results),
		"succeeded", domain.CountSucceeded(results),
		"duration", time.Since(start))
	return nil
}
