package domain

import (
	"strings"
	"time"
)

// ChannelType identifies the outbound channel a campaign is delivered through.
type ChannelType string

const (
	ChannelSMS   ChannelType = "sms"
	ChannelPush  ChannelType = "push"
	ChannelEmail ChannelType = "email"
)

// Valid reports whether t is one of the supported channels.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelSMS, ChannelPush, ChannelEmail:
		return true
	}
	return false
}

// CampaignState is the logical lifecycle state of a campaign. It is derived
// from stored fields rather than persisted.
type CampaignState string

const (
	StateDraft     CampaignState = "draft"
	StateScheduled CampaignState = "scheduled"
	StateSent      CampaignState = "sent"
	StateDeleted   CampaignState = "deleted"
)

// Campaign is a user-authored outbound message plus its recipient-list references.
type Campaign struct {
	ID          string       `json:"id" db:"id"`
	OwnerID     string       `json:"owner_id" db:"owner_id"`
	Channel     ChannelType  `json:"channel" db:"channel"`
	Title       string       `json:"title" db:"title"`
	Subject     string       `json:"subject,omitempty" db:"subject"`
	Content     string       `json:"content" db:"content"`
	FrequencyID *FrequencyID `json:"frequency_id,omitempty" db:"frequency_id"`
	StartAt     *time.Time   `json:"start_datetime,omitempty" db:"start_at"`
	EndAt       *time.Time   `json:"end_datetime,omitempty" db:"end_at"`
	TaskID      *string      `json:"task_id,omitempty" db:"task_id"`
	ListRefs    []string     `json:"list_ids" db:"-"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`

	// BlastCount is populated by queries that join blasts.
	BlastCount int `json:"blast_count" db:"blast_count"`
}

// HasContent reports whether the body is sendable.
func (c *Campaign) HasContent() bool {
	return strings.TrimSpace(c.Content) != ""
}

// IsScheduled reports whether an external task is attached.
func (c *Campaign) IsScheduled() bool {
	return c.TaskID != nil && *c.TaskID != ""
}

// State derives the logical state. Scheduled wins over Sent because a
// recurring campaign keeps re-entering Sent while its task stays active.
func (c *Campaign) State() CampaignState {
	switch {
	case c.IsScheduled():
		return StateScheduled
	case c.BlastCount > 0:
		return StateSent
	default:
		return StateDraft
	}
}

// ListAssociation links a campaign to one recipient list. Unique per pair.
type ListAssociation struct {
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	ListRef    string `json:"list_id" db:"list_ref"`
}

// CampaignPatch carries an update. Nil or empty fields leave the stored
// value unchanged.
type CampaignPatch struct {
	Title    *string  `json:"title"`
	Subject  *string  `json:"subject"`
	Content  *string  `json:"content"`
	ListRefs []string `json:"list_ids"`
}

// IsEmpty reports whether the patch would change nothing.
func (p CampaignPatch) IsEmpty() bool {
	return nonEmpty(p.Title) == "" && nonEmpty(p.Subject) == "" && nonEmpty(p.Content) == "" && len(p.ListRefs) == 0
}

func nonEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Apply overwrites only the fields present and non-empty in p.
func (p CampaignPatch) Apply(c *Campaign) {
	if v := nonEmpty(p.Title); v != "" {
		c.Title = *p.Title
	}
	if v := nonEmpty(p.Subject); v != "" {
		c.Subject = *p.Subject
	}
	if v := nonEmpty(p.Content); v != "" {
		c.Content = *p.Content
	}
	if len(p.ListRefs) > 0 {
		c.ListRefs = append([]string(nil), p.ListRefs...)
	}
}
