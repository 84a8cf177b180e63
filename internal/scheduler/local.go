package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Callback is invoked when a task fires. campaignID comes from the task's
// callback payload.
type Callback func(ctx context.Context, campaignID, taskID string) error

// ErrInvalidTask is returned for tasks the local engine cannot run.
var ErrInvalidTask = errors.New("invalid task")

type localEntry struct {
	task    domain.Task
	entryID cron.EntryID
}

// Local schedules tasks on an in-process cron engine.
type Local struct {
	mu      sync.Mutex
	c       *cron.Cron
	tasks   map[string]*localEntry
	fire    Callback
	locker  distlock.Locker
	lockTTL time.Duration
	timeout time.Duration
}

// NewLocal creates a stopped scheduler. locker may be nil for a single
// process.
func NewLocal(loc *time.Location, locker distlock.Locker) *Local {
	if loc == nil {
		loc = time.UTC
	}
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	return &Local{
		c:       cron.New(cron.WithLocation(loc)),
		tasks:   make(map[string]*localEntry),
		locker:  locker,
		lockTTL: 10 * time.Minute,
		timeout: 2 * time.Minute,
	}
}

// SetCallback installs the function fired tasks call. It must be set
// before Start.
func (l *Local) SetCallback(cb Callback) {
	l.mu.Lock()
	l.fire = cb
	l.mu.Unlock()
}

func (l *Local) Start() {
	l.c.Start()
	logger.Info("[scheduler.Local] started")
}

// Stop halts the engine and waits for running callbacks until ctx is done.
func (l *Local) Stop(ctx context.Context) {
	done := l.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	logger.Info("[scheduler.Local] stopped")
}

func (l *Local) CreateTask(_ context.Context, task domain.Task) (string, error) {
	task.ID = uuid.New().String()
	if err := l.register(task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// Restore re-registers a task under its existing id, replacing any entry
// with the same id. Used at startup to rebuild tasks from stored campaigns.
func (l *Local) Restore(task domain.Task) error {
	if task.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTask)
	}
	return l.register(task)
}

func (l *Local) GetTask(_ context.Context, id string) (*domain.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	t := e.task
	return &t, nil
}

func (l *Local) DeleteTask(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.c.Remove(e.entryID)
	delete(l.tasks, id)
	return nil
}

func (l *Local) register(task domain.Task) error {
	sched, err := scheduleFor(task)
	if err != nil {
		return err
	}
	if task.CallbackPayload["campaign_id"] == "" {
		return fmt.Errorf("%w: callback payload has no campaign_id", ErrInvalidTask)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.tasks[task.ID]; ok {
		l.c.Remove(old.entryID)
	}
	id := task.ID
	entryID := l.c.Schedule(sched, cron.FuncJob(func() { l.run(id, sched) }))
	l.tasks[id] = &localEntry{task: task, entryID: entryID}
	return nil
}

// run fires one occurrence. The lock key names the occurrence, so a
// replica that fires the same slot late finds it taken.
func (l *Local) run(id string, sched slotter) {
	l.mu.Lock()
	e, ok := l.tasks[id]
	cb := l.fire
	l.mu.Unlock()
	if !ok || cb == nil {
		return
	}

	slot := sched.slot(time.Now())
	lock := l.locker.Lock(fmt.Sprintf("schedule:%s:%d", id, slot.Unix()), l.lockTTL)
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error("[scheduler.Local] lock failed", "task_id", id, "error", err)
		return
	}
	if !acquired {
		logger.Debug("[scheduler.Local] occurrence already fired elsewhere", "task_id", id, "slot", slot)
		return
	}

	if e.task.Type == domain.TaskOneTime {
		l.mu.Lock()
		if cur, ok := l.tasks[id]; ok && cur.entryID == e.entryID {
			l.c.Remove(e.entryID)
			delete(l.tasks, id)
		}
		l.mu.Unlock()
	}

	campaignID := e.task.CallbackPayload["campaign_id"]
	if err := cb(ctx, campaignID, id); err != nil {
		logger.Error("[scheduler.Local] callback failed", "task_id", id, "campaign_id", campaignID, "error", err)
		return
	}
	logger.Info("[scheduler.Local] task fired", "task_id", id, "campaign_id", campaignID)
}

// slotter is a cron.Schedule that can name the occurrence a time falls in.
type slotter interface {
	cron.Schedule
	slot(t time.Time) time.Time
}

func scheduleFor(t domain.Task) (slotter, error) {
	switch t.Type {
	case domain.TaskOneTime:
		if t.RunAt == nil {
			return nil, fmt.Errorf("%w: one_time task needs run_datetime", ErrInvalidTask)
		}
		return onceSchedule{at: *t.RunAt}, nil
	case domain.TaskPeriodic:
		if t.StartAt == nil || t.FrequencySeconds <= 0 {
			return nil, fmt.Errorf("%w: periodic task needs start_datetime and frequency", ErrInvalidTask)
		}
		s := intervalSchedule{start: *t.StartAt, every: time.Duration(t.FrequencySeconds) * time.Second}
		if t.EndAt != nil {
			s.end = *t.EndAt
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTask, t.Type)
	}
}

// onceSchedule fires at a single instant.
type onceSchedule struct{ at time.Time }

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

func (s onceSchedule) slot(time.Time) time.Time { return s.at }

// intervalSchedule fires at start, start+every, ... up to end inclusive.
type intervalSchedule struct {
	start, end time.Time
	every      time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	next := s.start
	if !t.Before(s.start) {
		n := t.Sub(s.start)/s.every + 1
		next = s.start.Add(n * s.every)
	}
	if !s.end.IsZero() && next.After(s.end) {
		return time.Time{}
	}
	return next
}

// slot returns the latest occurrence at or before t.
func (s intervalSchedule) slot(t time.Time) time.Time {
	if t.Before(s.start) {
		return s.start
	}
	return s.start.Add(t.Sub(s.start) / s.every * s.every)
}
