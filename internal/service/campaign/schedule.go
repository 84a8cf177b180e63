package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Schedule attaches a new scheduler task. A campaign that already has one
// must be rescheduled instead.
func (s *Service) Schedule(ctx context.Context, id, callerID string, spec domain.ScheduleSpec) (string, error) {
	c, caller, err := s.load(ctx, id, callerID)
	if err != nil {
		return "", err
	}
	if c.IsScheduled() {
		return "", errAlreadyScheduled
	}
	if err := s.validateSendable(ctx, c); err != nil {
		return "", err
	}
	task, err := s.buildTask(c.ID, spec)
	if err != nil {
		return "", err
	}
	return s.attach(ctx, c, caller.ID, task, spec)
}

// Reschedule replaces the attached task when the new spec differs from it.
// An unchanged spec returns the current task id without calling the
// scheduler, even once its start has passed; timestamps must lie in the
// future only when the schedule changes. A task the scheduler no longer
// knows is treated as never scheduled.
func (s *Service) Reschedule(ctx context.Context, id, callerID string, spec domain.ScheduleSpec) (string, error) {
	c, caller, err := s.load(ctx, id, callerID)
	if err != nil {
		return "", err
	}
	if !c.IsScheduled() {
		return "", errNotScheduled
	}
	if err := s.validateSendable(ctx, c); err != nil {
		return "", err
	}
	task, err := s.taskFor(c.ID, spec)
	if err != nil {
		return "", err
	}

	oldID := *c.TaskID
	existing, err := s.Scheduler.GetTask(ctx, oldID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		existing = nil
	case err != nil:
		return "", apperr.Internal(fmt.Errorf("get task %s: %w", oldID, err))
	}

	if existing != nil && existing.SameSchedule(task) {
		return oldID, nil
	}
	if err := s.checkFuture(spec); err != nil {
		return "", err
	}
	if existing != nil {
		if err := s.deleteTask(ctx, oldID); err != nil {
			return "", err
		}
	}

	taskID, err := s.attach(ctx, c, caller.ID, task, spec)
	if err != nil {
		if clrErr := s.Campaigns.SetSchedule(ctx, c.ID, nil, nil); clrErr != nil {
			logger.Error("[campaign.Service] could not clear replaced task",
				"campaign_id", c.ID, "task_id", oldID, "error", clrErr)
		}
		return "", err
	}
	return taskID, nil
}

// Unschedule removes the attached task. No task is a no-op.
func (s *Service) Unschedule(ctx context.Context, id, callerID string) error {
	c, caller, err := s.load(ctx, id, callerID)
	if err != nil {
		return err
	}
	if !c.IsScheduled() {
		return nil
	}
	taskID := *c.TaskID
	if err := s.deleteTask(ctx, taskID); err != nil {
		return err
	}
	if err := s.Campaigns.SetSchedule(ctx, c.ID, nil, nil); err != nil {
		return apperr.Internal(fmt.Errorf("clear schedule: %w", err))
	}
	s.audit(ctx, domain.AuditEvent{
		ActorID:     caller.ID,
		Type:        domain.AuditUnscheduled,
		SourceTable: domain.TableCampaigns,
		SourceID:    c.ID,
		Params:      map[string]string{"task_id": taskID},
	})
	return nil
}

// attach creates the task and stores its id. If storing fails the new task
// is deleted again.
func (s *Service) attach(ctx context.Context, c *domain.Campaign, actorID string, task domain.Task, spec domain.ScheduleSpec) (string, error) {
	taskID, err := s.Scheduler.CreateTask(ctx, task)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("create task: %w", err))
	}
	if err := s.Campaigns.SetSchedule(ctx, c.ID, &taskID, &spec); err != nil {
		if delErr := s.Scheduler.DeleteTask(ctx, taskID); delErr != nil {
			logger.Error("[campaign.Service] orphaned scheduler task",
				"campaign_id", c.ID, "task_id", taskID, "error", delErr)
		}
		return "", apperr.Internal(fmt.Errorf("store task id: %w", err))
	}

	logger.Info("[campaign.Service] campaign scheduled",
		"campaign_id", c.ID, "task_id", taskID, "type", string(task.Type))
	s.audit(ctx, domain.AuditEvent{
		ActorID:     actorID,
		Type:        domain.AuditScheduled,
		SourceTable: domain.TableCampaigns,
		SourceID:    c.ID,
		Params: map[string]string{
			"task_id": taskID,
			"type":    string(task.Type),
		},
	})
	return taskID, nil
}

// deleteTask removes a scheduler task. A task the scheduler does not know
// counts as removed.
func (s *Service) deleteTask(ctx context.Context, taskID string) error {
	err := s.Scheduler.DeleteTask(ctx, taskID)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return apperr.Internal(fmt.Errorf("delete task %s: %w", taskID, err))
}

// buildTask turns a caller's spec into a scheduler payload. All timestamps
// must lie strictly in the future.
func (s *Service) buildTask(campaignID string, spec domain.ScheduleSpec) (domain.Task, error) {
	if err := s.checkFuture(spec); err != nil {
		return domain.Task{}, err
	}
	return s.taskFor(campaignID, spec)
}

func (s *Service) checkFuture(spec domain.ScheduleSpec) error {
	now := s.Now()
	if spec.StartAt == nil {
		return apperr.InvalidUsage("start_datetime", "start_datetime is required")
	}
	if !spec.StartAt.After(now) {
		return apperr.InvalidUsage("start_datetime", "start_datetime must be in the future")
	}
	if spec.IsRecurring() && spec.EndAt != nil && !spec.EndAt.After(now) {
		return apperr.InvalidUsage("end_datetime", "end_datetime must be in the future")
	}
	return nil
}

// taskFor checks the shape of spec and builds the payload without looking
// at the clock.
func (s *Service) taskFor(campaignID string, spec domain.ScheduleSpec) (domain.Task, error) {
	if spec.StartAt == nil {
		return domain.Task{}, apperr.InvalidUsage("start_datetime", "start_datetime is required")
	}
	task := domain.Task{
		CallbackURL:     s.CallbackURL,
		CallbackPayload: map[string]string{"campaign_id": campaignID},
	}
	if !spec.IsRecurring() {
		start := spec.StartAt.UTC()
		task.Type = domain.TaskOneTime
		task.RunAt = &start
		return task, nil
	}

	seconds, ok := spec.Frequency.Seconds()
	if !ok {
		return domain.Task{}, apperr.InvalidUsage("frequency_id", fmt.Sprintf("unknown frequency_id %d", *spec.Frequency))
	}
	if spec.EndAt == nil {
		return domain.Task{}, apperr.InvalidUsage("end_datetime", "end_datetime is required when frequency_id is set")
	}
	if !spec.EndAt.After(*spec.StartAt) {
		return domain.Task{}, apperr.InvalidUsage("end_datetime", "end_datetime must be after start_datetime")
	}

	start, end := spec.StartAt.UTC(), spec.EndAt.UTC()
	task.Type = domain.TaskPeriodic
	task.FrequencySeconds = seconds
	task.StartAt = &start
	task.EndAt = &end
	return task, nil
}

// StoredTask rebuilds the task attached to c from its stored schedule. No
// time checks apply. ok is false when c has no task.
func (s *Service) StoredTask(c *domain.Campaign) (task domain.Task, ok bool) {
	if !c.IsScheduled() || c.StartAt == nil {
		return domain.Task{}, false
	}
	task, err := s.taskFor(c.ID, domain.ScheduleSpec{StartAt: c.StartAt, EndAt: c.EndAt, Frequency: c.FrequencyID})
	if err != nil {
		return domain.Task{}, false
	}
	task.ID = *c.TaskID
	return task, true
}
