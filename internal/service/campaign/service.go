package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
)

// Maximum content length per channel.
var maxContentLen = map[domain.ChannelType]int{
	domain.ChannelSMS:   1600,
	domain.ChannelPush:  2048,
	domain.ChannelEmail: 512 * 1024,
}

// Deps are the collaborators of a Service.
type Deps struct {
	Campaigns  Repository
	Blasts     BlastStore
	Sends      SendStore
	Users      UserStore
	Lists      ListStore
	Scheduler  Scheduler
	Audit      Auditor
	Queue      Publisher
	Resolver   RecipientResolver
	Dispatcher SendDispatcher

	// Suppressions is optional; without it nobody is filtered.
	Suppressions Suppressions

	// CallbackURL is where the scheduler posts when a task fires.
	CallbackURL string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is the campaign orchestrator. All public methods are safe for
// concurrent use if the underlying stores are.
type Service struct {
	Deps
}

// NewService creates a campaign service.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{Deps: d}
}

// caller resolves the acting user. An unknown caller is Forbidden.
func (s *Service) caller(ctx context.Context, callerID string) (*domain.User, error) {
	if callerID == "" {
		return nil, apperr.Forbidden("caller is not authenticated")
	}
	u, err := s.Users.GetUser(ctx, callerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.Forbidden("unknown caller")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// load fetches a campaign and checks the caller may act on it.
func (s *Service) load(ctx context.Context, id, callerID string) (*domain.Campaign, *domain.User, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.Campaigns.Get(ctx, id)
	if err != nil {
		return nil, nil, notFound(err, "campaign", id)
	}
	if err := s.authorize(ctx, c, caller); err != nil {
		return nil, nil, err
	}
	return c, caller, nil
}

func (s *Service) authorize(ctx context.Context, c *domain.Campaign, caller *domain.User) error {
	if c.OwnerID == caller.ID {
		return nil
	}
	owner, err := s.Users.GetUser(ctx, c.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errOtherDomain
		}
		return apperr.Internal(err)
	}
	if owner.DomainID != caller.DomainID {
		return errOtherDomain
	}
	return nil
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id, callerID string) (*domain.Campaign, error) {
	c, _, err := s.load(ctx, id, callerID)
	return c, err
}

// List returns the campaigns visible to the caller's domain.
func (s *Service) List(ctx context.Context, callerID string) ([]domain.Campaign, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	out, err := s.Campaigns.ListByDomain(ctx, caller.DomainID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// Create validates and persists a new draft campaign.
func (s *Service) Create(ctx context.Context, callerID string, in CreateInput) (*domain.Campaign, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !in.Channel.Valid() {
		return nil, apperr.InvalidUsage("channel", fmt.Sprintf("unsupported channel %q", in.Channel))
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperr.InvalidUsage("title", "title is required")
	}
	if err := validateContent(in.Channel, in.Content); err != nil {
		return nil, err
	}
	refs, err := s.validateLists(ctx, caller.DomainID, in.ListRefs)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	c := &domain.Campaign{
		ID:        uuid.New().String(),
		OwnerID:   caller.ID,
		Channel:   in.Channel,
		Title:     in.Title,
		Subject:   in.Subject,
		Content:   in.Content,
		ListRefs:  refs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Campaigns.Create(ctx, c); err != nil {
		return nil, apperr.Internal(fmt.Errorf("create campaign: %w", err))
	}

	s.audit(ctx, domain.AuditEvent{
		ActorID:     caller.ID,
		Type:        domain.AuditCreated,
		SourceTable: domain.TableCampaigns,
		SourceID:    c.ID,
	})
	logger.Info("[campaign.Service] campaign created", "campaign_id", c.ID, "channel", string(c.Channel), "lists", len(refs))
	return c, nil
}

// Update applies the non-empty fields of patch.
func (s *Service) Update(ctx context.Context, id, callerID string, patch domain.CampaignPatch) (*domain.Campaign, error) {
	c, caller, err := s.load(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return c, nil
	}
	if len(patch.ListRefs) > 0 {
		refs, err := s.validateLists(ctx, caller.DomainID, patch.ListRefs)
		if err != nil {
			return nil, err
		}
		patch.ListRefs = refs
	}
	patch.Apply(c)
	if err := validateContent(c.Channel, c.Content); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.Now().UTC()

	if err := s.Campaigns.Update(ctx, c); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.NotFound("campaign", id)
		}
		return nil, apperr.Internal(fmt.Errorf("update campaign: %w", err))
	}
	s.audit(ctx, domain.AuditEvent{
		ActorID:     caller.ID,
		Type:        domain.AuditUpdated,
		SourceTable: domain.TableCampaigns,
		SourceID:    c.ID,
	})
	return c, nil
}

// Delete removes the campaign. An attached scheduler task is removed first;
// if that fails nothing is deleted.
func (s *Service) Delete(ctx context.Context, id, callerID string) error {
	c, caller, err := s.load(ctx, id, callerID)
	if err != nil {
		return err
	}
	if c.IsScheduled() {
		if err := s.deleteTask(ctx, *c.TaskID); err != nil {
			return err
		}
	}
	if err := s.Campaigns.Delete(ctx, c.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperr.NotFound("campaign", id)
		}
		return apperr.Internal(fmt.Errorf("delete campaign: %w", err))
	}
	s.audit(ctx, domain.AuditEvent{
		ActorID:     caller.ID,
		Type:        domain.AuditDeleted,
		SourceTable: domain.TableCampaigns,
		SourceID:    c.ID,
	})
	logger.Info("[campaign.Service] campaign deleted", "campaign_id", c.ID)
	return nil
}

// ListBlasts returns the blasts of a campaign, newest first.
func (s *Service) ListBlasts(ctx context.Context, id, callerID string) ([]domain.Blast, error) {
	c, _, err := s.load(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	out, err := s.Blasts.ListBlasts(ctx, c.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// ListSends returns the sends of a blast.
func (s *Service) ListSends(ctx context.Context, blastID, callerID string) ([]domain.Send, error) {
	b, err := s.Blasts.GetBlast(ctx, blastID)
	if err != nil {
		return nil, notFound(err, "blast", blastID)
	}
	if _, _, err := s.load(ctx, b.CampaignID, callerID); err != nil {
		return nil, err
	}
	out, err := s.Sends.ListSends(ctx, blastID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// RecordReply counts an inbound reply against a blast.
func (s *Service) RecordReply(ctx context.Context, blastID string) error {
	return s.increment(ctx, blastID, domain.FieldReplies)
}

// RecordOpen counts an open against a blast.
func (s *Service) RecordOpen(ctx context.Context, blastID string) error {
	return s.increment(ctx, blastID, domain.FieldOpens)
}

// RecordOptOut suppresses recipientID on the channel blastID was sent over.
func (s *Service) RecordOptOut(ctx context.Context, blastID, recipientID string) error {
	if s.Suppressions == nil {
		return apperr.Internal(errors.New("no suppression list configured"))
	}
	b, err := s.Blasts.GetBlast(ctx, blastID)
	if err != nil {
		return notFound(err, "blast", blastID)
	}
	c, err := s.Campaigns.Get(ctx, b.CampaignID)
	if err != nil {
		return notFound(err, "campaign", b.CampaignID)
	}
	return s.Suppressions.Suppress(ctx, domain.Suppression{
		RecipientID: recipientID,
		Channel:     c.Channel,
		Reason:      domain.ReasonOptOut,
		Source:      domain.SourceEngagement,
		CampaignID:  c.ID,
		BlastID:     b.ID,
	})
}

func (s *Service) increment(ctx context.Context, blastID string, field domain.BlastField) error {
	if err := s.Blasts.IncrementField(ctx, blastID, field, 1); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperr.NotFound("blast", blastID)
		}
		return apperr.Internal(err)
	}
	return nil
}

// validateContent checks length only; an empty body is a valid draft.
func validateContent(ch domain.ChannelType, content string) error {
	if limit, ok := maxContentLen[ch]; ok && len(content) > limit {
		return apperr.InvalidUsage("content", fmt.Sprintf("content exceeds %d characters for %s", limit, ch))
	}
	return nil
}

// validateLists checks every reference is a live list of the same domain
// and returns them deduplicated.
func (s *Service) validateLists(ctx context.Context, domainID string, refs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, apperr.InvalidUsage("list_ids", "list id must not be empty")
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}

		l, err := s.Lists.GetList(ctx, ref)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.InvalidUsage("list_ids", fmt.Sprintf("list %s does not exist", ref))
		}
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if l.DomainID != domainID {
			return nil, apperr.InvalidUsage("list_ids", fmt.Sprintf("list %s is not owned by your domain", ref))
		}
		if l.IsDeleted() {
			return nil, apperr.InvalidUsage("list_ids", fmt.Sprintf("list %s has been deleted", ref))
		}
		out = append(out, ref)
	}
	return out, nil
}

// validateSendable rejects campaigns with no content or no usable list.
func (s *Service) validateSendable(ctx context.Context, c *domain.Campaign) error {
	if !c.HasContent() {
		return apperr.InvalidUsage("content", "content must not be empty")
	}
	if len(c.ListRefs) == 0 {
		return apperr.InvalidUsage("list_ids", "campaign has no recipient lists")
	}
	for _, ref := range c.ListRefs {
		l, err := s.Lists.GetList(ctx, ref)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return apperr.Internal(err)
		}
		if !l.IsDeleted() {
			return nil
		}
	}
	return apperr.InvalidUsage("list_ids", "none of the campaign's lists can be resolved")
}

func (s *Service) audit(ctx context.Context, ev domain.AuditEvent) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Record(ctx, ev); err != nil {
		logger.Warn("[campaign.Service] audit event dropped",
			"event", string(ev.Type),
			"source_id", ev.SourceID,
			"error", err)
	}
}

// jobFor builds the queue message for one send.
func (s *Service) jobFor(c *domain.Campaign, actorID string) queue.SendJob {
	return queue.SendJob{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		BlastID:    uuid.New().String(),
		ActorID:    actorID,
		EnqueuedAt: s.Now().UTC(),
	}
}
