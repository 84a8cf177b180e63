package campaign

import (
	"context"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/service/sending"
)

// Repository is the campaign store. Implementations must be safe for
// concurrent use and return domain.ErrNotFound for missing rows.
type Repository interface {
	// Get returns the campaign with its ListRefs and BlastCount populated.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// ListByDomain returns the campaigns whose owners belong to domainID,
	// newest first.
	ListByDomain(ctx context.Context, domainID string) ([]domain.Campaign, error)

	// Create inserts the campaign and its list associations atomically.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update writes title, subject, content and replaces the list
	// associations with c.ListRefs.
	Update(ctx context.Context, c *domain.Campaign) error

	// SetSchedule stores (or with a nil taskID, clears) the scheduler task
	// reference and the schedule that produced it.
	SetSchedule(ctx context.Context, id string, taskID *string, spec *domain.ScheduleSpec) error

	// Delete removes the campaign with its blasts, sends and list
	// associations.
	Delete(ctx context.Context, id string) error

	// ListRefs returns the campaign's list references in association order.
	ListRefs(ctx context.Context, campaignID string) ([]string, error)
}

// BlastStore holds blasts and their counters.
type BlastStore interface {
	// CreateBlast inserts b unless a blast with b.ID exists. created is
	// false for the existing case.
	CreateBlast(ctx context.Context, b *domain.Blast) (created bool, err error)
	GetBlast(ctx context.Context, id string) (*domain.Blast, error)
	ListBlasts(ctx context.Context, campaignID string) ([]domain.Blast, error)
	// IncrementField atomically adds delta to one counter of one blast.
	IncrementField(ctx context.Context, blastID string, field domain.BlastField, delta int64) error
	// SyncSendCount sets the sends counter to the number of stored Send
	// rows and returns the counter before and after.
	SyncSendCount(ctx context.Context, blastID string) (prev, cur int64, err error)
}

// SendStore reads the sends of a blast.
type SendStore interface {
	ListSends(ctx context.Context, blastID string) ([]domain.Send, error)
}

// UserStore resolves users to their authorization domain.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// ListStore looks up recipient lists for ownership validation.
type ListStore interface {
	GetList(ctx context.Context, ref string) (*domain.RecipientList, error)
}

// Scheduler is the external task scheduler. GetTask returns
// domain.ErrNotFound for unknown ids.
type Scheduler interface {
	CreateTask(ctx context.Context, task domain.Task) (string, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Auditor records lifecycle events. Errors are logged, never propagated.
type Auditor interface {
	Record(ctx context.Context, ev domain.AuditEvent) error
}

// Publisher enqueues send jobs for the worker pool.
type Publisher interface {
	Publish(ctx context.Context, job queue.SendJob) error
}

// RecipientResolver resolves a campaign to its recipients.
type RecipientResolver interface {
	ResolveRefs(ctx context.Context, campaignID string, refs []string) ([]string, error)
}

// Suppressions is the per-channel opt-out list.
type Suppressions interface {
	Filter(ctx context.Context, channel domain.ChannelType, ids []string) ([]string, int, error)
	Suppress(ctx context.Context, entry domain.Suppression) error
}

// SendDispatcher fans a blast out to recipients.
type SendDispatcher interface {
	Dispatch(ctx context.Context, c *domain.Campaign, blastID string, recipients []string, onComplete sending.CompletionFunc) *sending.Barrier
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Channel  domain.ChannelType `json:"channel"`
	Title    string             `json:"title"`
	Subject  string             `json:"subject"`
	Content  string             `json:"content"`
	ListRefs []string           `json:"list_ids"`
}
