package tracking

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// LinkStore persists short links. RecordHit must add one to hit_count and
// set last_hit_at in a single atomic statement.
type LinkStore interface {
	CreateShortLink(ctx context.Context, l *domain.ShortLink) error
	UpdateShortLink(ctx context.Context, l *domain.ShortLink) error
	GetShortLink(ctx context.Context, id string) (*domain.ShortLink, error)
	RecordHit(ctx context.Context, id string, at time.Time) error
}

// SendLinkStore finds the send a short link was rendered into.
type SendLinkStore interface {
	SendForLink(ctx context.Context, shortLinkID string) (*domain.Send, error)
}

// BlastStore reads blasts and bumps their counters atomically.
type BlastStore interface {
	GetBlast(ctx context.Context, id string) (*domain.Blast, error)
	IncrementField(ctx context.Context, blastID string, field domain.BlastField, delta int64) error
}

type CampaignStore interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
}

type RecipientStore interface {
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)
}

// Auditor records lifecycle events.
type Auditor interface {
	Record(ctx context.Context, ev domain.AuditEvent) error
}

// TargetCache caches resolved click chains. Get returns domain.ErrNotFound
// on a miss.
type TargetCache interface {
	Get(ctx context.Context, shortLinkID string) (*domain.ClickTarget, error)
	Set(ctx context.Context, t *domain.ClickTarget) error
	Invalidate(ctx context.Context, shortLinkID string) error
}

// State is the position of a redirect request in its state machine.
type State int

const (
	StateUnverified State = iota
	StateSignatureValid
	StateRecordsResolved
	StateRedirected
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUnverified:
		return "unverified"
	case StateSignatureValid:
		return "signature_valid"
	case StateRecordsResolved:
		return "records_resolved"
	case StateRedirected:
		return "redirected"
	default:
		return "rejected"
	}
}

var (
	// ErrRejected matches every failed redirect.
	ErrRejected = errors.New("redirect rejected")
	// ErrEmptyDestination means the link resolved but has nowhere to go.
	ErrEmptyDestination = errors.New("short link has an empty destination url")
)

// Rejection records the state a redirect was in when it was refused.
type Rejection struct {
	At     State
	Reason error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("redirect rejected at %s: %v", r.At, r.Reason)
}

func (r *Rejection) Unwrap() []error { return []error{ErrRejected, r.Reason} }

// Deps are the collaborators of a Service.
type Deps struct {
	Links      LinkStore
	SendLinks  SendLinkStore
	Blasts     BlastStore
	Campaigns  CampaignStore
	Recipients RecipientStore
	Audit      Auditor
	Cache      TargetCache
	Signer     *Signer
	Now        func() time.Time
}

// Service resolves signed short links and counts clicks.
type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{Deps: d}
}

// Redirect runs one click through Unverified, SignatureValid,
// RecordsResolved and Redirected, returning the destination URL. Any
// failure is a *Rejection.
func (s *Service) Redirect(ctx context.Context, shortLinkID string, q url.Values) (string, error) {
	if err := s.Signer.Verify(q, shortLinkID); err != nil {
		return "", &Rejection{At: StateUnverified, Reason: err}
	}

	target, err := s.resolve(ctx, shortLinkID)
	if err != nil {
		return "", &Rejection{At: StateSignatureValid, Reason: err}
	}

	dest := strings.TrimSpace(target.Link.DestinationURL)
	if dest == "" {
		return "", &Rejection{At: StateRecordsResolved, Reason: ErrEmptyDestination}
	}

	now := s.Now()
	if err := s.Links.RecordHit(ctx, target.Link.ID, now); err != nil {
		return "", &Rejection{At: StateRecordsResolved, Reason: fmt.Errorf("record hit: %w", err)}
	}
	if err := s.Blasts.IncrementField(ctx, target.Blast.ID, domain.FieldClicks, 1); err != nil {
		return "", &Rejection{At: StateRecordsResolved, Reason: fmt.Errorf("count click: %w", err)}
	}

	if s.Audit != nil {
		ev := domain.AuditEvent{
			ActorID:     target.Recipient.ID,
			Type:        domain.AuditClicked,
			SourceTable: domain.TableShortLinks,
			SourceID:    target.Link.ID,
			Params: map[string]string{
				"campaign_id": target.Campaign.ID,
				"blast_id":    target.Blast.ID,
				"send_id":     target.Send.ID,
			},
		}
		if err := s.Audit.Record(ctx, ev); err != nil {
			logger.Warn("[tracking.Service] click audit dropped", "short_link_id", target.Link.ID, "error", err)
		}
	}
	return dest, nil
}

// resolve walks link -> send -> blast -> campaign -> recipient. A
// soft-deleted recipient counts as missing.
func (s *Service) resolve(ctx context.Context, id string) (*domain.ClickTarget, error) {
	if s.Cache != nil {
		t, err := s.Cache.Get(ctx, id)
		if err == nil {
			return s.checkCached(ctx, t)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("[tracking.Service] link cache read failed", "short_link_id", id, "error", err)
		}
	}

	link, err := s.Links.GetShortLink(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("short link: %w", err)
	}
	send, err := s.SendLinks.SendForLink(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	blast, err := s.Blasts.GetBlast(ctx, send.BlastID)
	if err != nil {
		return nil, fmt.Errorf("blast: %w", err)
	}
	camp, err := s.Campaigns.Get(ctx, blast.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign: %w", err)
	}
	rcpt, err := s.Recipients.GetRecipient(ctx, send.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	if rcpt.IsDeleted() {
		return nil, fmt.Errorf("recipient: %w", domain.ErrNotFound)
	}

	t := &domain.ClickTarget{Link: *link, Send: *send, Blast: *blast, Campaign: *camp, Recipient: *rcpt}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, t); err != nil {
			logger.Warn("[tracking.Service] link cache write failed", "short_link_id", id, "error", err)
		}
	}
	return t, nil
}

// checkCached confirms the blast of a cached chain still exists, so a click
// on a deleted campaign is rejected before any counter moves. A stale entry
// is dropped.
func (s *Service) checkCached(ctx context.Context, t *domain.ClickTarget) (*domain.ClickTarget, error) {
	_, err := s.Blasts.GetBlast(ctx, t.Blast.ID)
	if err == nil {
		return t, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		if ierr := s.Cache.Invalidate(ctx, t.Link.ID); ierr != nil {
			logger.Warn("[tracking.Service] link cache invalidate failed", "short_link_id", t.Link.ID, "error", ierr)
		}
	}
	return nil, fmt.Errorf("blast: %w", err)
}

// UpdateDestination repoints a short link. Used to repair links whose
// destination was entered wrong or left empty.
func (s *Service) UpdateDestination(ctx context.Context, id, destination string) (*domain.ShortLink, error) {
	u, err := url.Parse(destination)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.InvalidUsage("destination_url", "destination_url must be an absolute http(s) url")
	}
	link, err := s.Links.GetShortLink(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.NotFound("short link", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	link.DestinationURL = destination
	if err := s.Links.UpdateShortLink(ctx, link); err != nil {
		return nil, apperr.Internal(err)
	}
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, id); err != nil {
			logger.Warn("[tracking.Service] link cache invalidate failed", "short_link_id", id, "error", err)
		}
	}
	return link, nil
}
