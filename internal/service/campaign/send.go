package campaign

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/service/sending"
)

// ErrNoRecipients is returned by ExecuteSend when no list yields a
// recipient. No blast is created in that case.
var ErrNoRecipients = apperr.InvalidUsagef(sending.ErrNoRecipients, "list_ids", "campaign has no recipients")

// Send validates the campaign and enqueues it for execution. It returns as
// soon as the job is queued.
func (s *Service) Send(ctx context.Context, id, callerID string) (*queue.SendJob, error) {
	c, caller, err := s.load(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	return s.enqueue(ctx, c, caller.ID)
}

// SendFromSchedule is the scheduler callback. taskID must match the task
// currently attached to the campaign; a stale task is refused. A one-time
// task is detached once it has fired.
func (s *Service) SendFromSchedule(ctx context.Context, campaignID, taskID string) (*queue.SendJob, error) {
	c, err := s.Campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, notFound(err, "campaign", campaignID)
	}
	if !c.IsScheduled() || *c.TaskID != taskID {
		return nil, apperr.Forbidden("task is not attached to this campaign")
	}

	job, err := s.enqueue(ctx, c, c.OwnerID)
	if err != nil {
		return nil, err
	}
	if c.FrequencyID == nil {
		if err := s.Campaigns.SetSchedule(ctx, c.ID, nil, nil); err != nil {
			logger.Warn("[campaign.Service] could not detach fired one-time task",
				"campaign_id", c.ID, "task_id", taskID, "error", err)
		}
	}
	return job, nil
}

func (s *Service) enqueue(ctx context.Context, c *domain.Campaign, actorID string) (*queue.SendJob, error) {
	if err := s.validateSendable(ctx, c); err != nil {
		return nil, err
	}
	job := s.jobFor(c, actorID)
	if err := s.Queue.Publish(ctx, job); err != nil {
		return nil, apperr.Internal(fmt.Errorf("enqueue send: %w", err))
	}
	logger.Info("[campaign.Service] send enqueued",
		"campaign_id", c.ID,
		"blast_id", job.BlastID,
		"job_id", job.ID)
	return &job, nil
}

// ExecuteSend runs the send pipeline for a queued job: resolve recipients,
// create the blast, then dispatch. It returns once dispatch has started;
// CompleteSend runs from the returned barrier after every recipient has
// settled. Redelivery of the same job reuses its blast.
func (s *Service) ExecuteSend(ctx context.Context, job queue.SendJob) (*sending.Barrier, error) {
	c, err := s.Campaigns.Get(ctx, job.CampaignID)
	if err != nil {
		return nil, notFound(err, "campaign", job.CampaignID)
	}
	if !c.HasContent() {
		return nil, apperr.InvalidUsage("content", "content must not be empty")
	}

	recipients, err := s.Resolver.ResolveRefs(ctx, c.ID, c.ListRefs)
	if errors.Is(err, sending.ErrNoRecipients) {
		return nil, ErrNoRecipients
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("resolve recipients: %w", err))
	}
	if s.Suppressions != nil {
		kept, dropped, err := s.Suppressions.Filter(ctx, c.Channel, recipients)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if dropped > 0 {
			logger.Info("[campaign.Service] suppressed recipients skipped",
				"campaign_id", c.ID,
				"channel", string(c.Channel),
				"dropped", dropped)
		}
		if len(kept) == 0 {
			return nil, ErrNoRecipients
		}
		recipients = kept
	}

	blast := &domain.Blast{ID: job.BlastID, CampaignID: c.ID, CreatedAt: s.Now().UTC()}
	created, err := s.Blasts.CreateBlast(ctx, blast)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("create blast: %w", err))
	}
	if !created {
		logger.Info("[campaign.Service] resuming existing blast", "blast_id", blast.ID, "job_id", job.ID)
	}

	logger.Info("[campaign.Service] dispatching",
		"campaign_id", c.ID,
		"blast_id", blast.ID,
		"recipients", len(recipients))

	actorID := job.ActorID
	if actorID == "" {
		actorID = c.OwnerID
	}
	b := s.Dispatcher.Dispatch(ctx, c, blast.ID, recipients, func(ctx context.Context, results []domain.DispatchResult) {
		if err := s.complete(ctx, c.ID, blast.ID, actorID, results); err != nil {
			logger.Error("[campaign.Service] send completion failed",
				"campaign_id", c.ID,
				"blast_id", blast.ID,
				"error", err)
		}
	})
	return b, nil
}

// CompleteSend closes out a send once all dispatches have settled. The
// blast's sends counter is set to the number of Send rows stored for it, so
// replaying results is harmless and a run that died before completing is
// caught up by the next one. A sent event carries the amount the counter
// grew by and is emitted only when it grew.
func (s *Service) CompleteSend(ctx context.Context, blastID string, results []domain.DispatchResult) error {
	b, err := s.Blasts.GetBlast(ctx, blastID)
	if err != nil {
		return notFound(err, "blast", blastID)
	}
	c, err := s.Campaigns.Get(ctx, b.CampaignID)
	if err != nil {
		return notFound(err, "campaign", b.CampaignID)
	}
	return s.complete(ctx, c.ID, blastID, c.OwnerID, results)
}

func (s *Service) complete(ctx context.Context, campaignID, blastID, actorID string, results []domain.DispatchResult) error {
	succeeded := domain.CountSucceeded(results)
	prev, cur, err := s.Blasts.SyncSendCount(ctx, blastID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("sync sends: %w", err))
	}
	added := cur - prev
	logger.Info("[campaign.Service] send complete",
		"campaign_id", campaignID,
		"blast_id", blastID,
		"attempted", len(results),
		"succeeded", succeeded,
		"created_rows", domain.CountNewSends(results),
		"new_sends", added)

	if added <= 0 {
		return nil
	}
	s.audit(ctx, domain.AuditEvent{
		ActorID:     actorID,
		Type:        domain.AuditSent,
		SourceTable: domain.TableBlasts,
		SourceID:    blastID,
		Params: map[string]string{
			"campaign_id": campaignID,
			"count":       strconv.FormatInt(added, 10),
		},
	})
	return nil
}
