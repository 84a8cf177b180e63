package domain

import "time"

// SuppressionReason enumerates why a recipient stopped receiving a channel.
type SuppressionReason string

const (
	ReasonOptOut      SuppressionReason = "opt_out"     // STOP-style reply
	ReasonUnsubscribe SuppressionReason = "unsubscribe" // unsubscribe link
	ReasonHardBounce  SuppressionReason = "hard_bounce"
	ReasonComplaint   SuppressionReason = "complaint"
	ReasonManual      SuppressionReason = "manual"
)

// Valid reports whether r is a known reason.
func (r SuppressionReason) Valid() bool {
	switch r {
	case ReasonOptOut, ReasonUnsubscribe, ReasonHardBounce, ReasonComplaint, ReasonManual:
		return true
	}
	return false
}

// SuppressionSource indicates where the suppression signal originated.
type SuppressionSource string

const (
	SourceEngagement SuppressionSource = "engagement_event"
	SourceManual     SuppressionSource = "manual"
	SourceImport     SuppressionSource = "import"
)

// Suppression excludes one recipient from one channel. Sends resolved for a
// suppressed (recipient, channel) pair are dropped before dispatch.
type Suppression struct {
	RecipientID string            `json:"recipient_id" db:"recipient_id"`
	Channel     ChannelType       `json:"channel" db:"channel"`
	Reason      SuppressionReason `json:"reason" db:"reason"`
	Source      SuppressionSource `json:"source" db:"source"`
	CampaignID  string            `json:"campaign_id,omitempty" db:"campaign_id"`
	BlastID     string            `json:"blast_id,omitempty" db:"blast_id"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}
