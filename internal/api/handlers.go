package api

import (
	"context"
	"net/http"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

// CampaignService is the subset of the orchestrator the admin API calls.
type CampaignService interface {
	Get(ctx context.Context, id, callerID string) (*domain.Campaign, error)
	List(ctx context.Context, callerID string) ([]domain.Campaign, error)
	Create(ctx context.Context, callerID string, in campaign.CreateInput) (*domain.Campaign, error)
	Update(ctx context.Context, id, callerID string, patch domain.CampaignPatch) (*domain.Campaign, error)
	Delete(ctx context.Context, id, callerID string) error

	Schedule(ctx context.Context, id, callerID string, spec domain.ScheduleSpec) (string, error)
	Reschedule(ctx context.Context, id, callerID string, spec domain.ScheduleSpec) (string, error)
	Unschedule(ctx context.Context, id, callerID string) error
	Send(ctx context.Context, id, callerID string) (*queue.SendJob, error)
	SendFromSchedule(ctx context.Context, campaignID, taskID string) (*queue.SendJob, error)

	ListBlasts(ctx context.Context, id, callerID string) ([]domain.Blast, error)
	ListSends(ctx context.Context, blastID, callerID string) ([]domain.Send, error)
	RecordReply(ctx context.Context, blastID string) error
	RecordOpen(ctx context.Context, blastID string) error
	RecordOptOut(ctx context.Context, blastID, recipientID string) error
}

// LinkEditor retargets short links.
type LinkEditor interface {
	UpdateDestination(ctx context.Context, id, destination string) (*domain.ShortLink, error)
}

// SuppressionService manages the per-channel opt-out list.
type SuppressionService interface {
	Suppress(ctx context.Context, entry domain.Suppression) error
	Remove(ctx context.Context, recipientID string, channel domain.ChannelType) error
	List(ctx context.Context, filter suppression.ListFilter) ([]domain.Suppression, int, error)
	GetStats(ctx context.Context) (*suppression.Stats, error)
}

// Handlers contains all HTTP handlers of the admin API.
type Handlers struct {
	campaigns    CampaignService
	links        LinkEditor
	suppressions SuppressionService
	health       *HealthChecker
}

// NewHandlers creates the handler set. health may be nil.
func NewHandlers(campaigns CampaignService, links LinkEditor, health *HealthChecker) *Handlers {
	if health == nil {
		health = NewHealthChecker(nil, nil)
	}
	return &Handlers{campaigns: campaigns, links: links, health: health}
}

// SetSuppressions enables the /internal/suppressions endpoints.
func (h *Handlers) SetSuppressions(svc SuppressionService) {
	h.suppressions = svc
}

type ctxKey int

const callerKey ctxKey = iota

// CallerHeader carries the authenticated user id set by the upstream
// auth layer.
const CallerHeader = "X-User-ID"

// InternalTokenHeader authenticates scheduler and engagement callbacks.
const InternalTokenHeader = "X-Internal-Token"

func callerFrom(r *http.Request) string {
	id, _ := r.Context().Value(callerKey).(string)
	return id
}

func unauthorized(w http.ResponseWriter) {
	httputil.JSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
}
