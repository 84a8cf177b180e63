package domain

import "time"

// Blast is one execution of a campaign. Counters start at zero and only
// ever increase.
type Blast struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	Sends      int64     `json:"sends" db:"sends"`
	Clicks     int64     `json:"clicks" db:"clicks"`
	Replies    int64     `json:"replies" db:"replies"`
	Opens      int64     `json:"opens" db:"opens"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// BlastField names one of the blast counters.
type BlastField string

const (
	FieldSends   BlastField = "sends"
	FieldClicks  BlastField = "clicks"
	FieldReplies BlastField = "replies"
	FieldOpens   BlastField = "opens"
)

// Valid reports whether f names a known counter.
func (f BlastField) Valid() bool {
	switch f {
	case FieldSends, FieldClicks, FieldReplies, FieldOpens:
		return true
	}
	return false
}

// Send records that a blast was dispatched to one recipient. At most one row
// exists per (BlastID, RecipientID).
type Send struct {
	ID          string    `json:"id" db:"id"`
	BlastID     string    `json:"blast_id" db:"blast_id"`
	RecipientID string    `json:"recipient_id" db:"recipient_id"`
	SentAt      time.Time `json:"sent_at" db:"sent_at"`
}

// DispatchResult is the settled outcome of one per-recipient send.
type DispatchResult struct {
	RecipientID string `json:"recipient_id"`
	SendID      string `json:"send_id,omitempty"`
	OK          bool   `json:"ok"`
	// Created is false when OK is true but the Send row already existed,
	// i.e. the recipient was re-dispatched within the same blast.
	Created bool   `json:"created"`
	Error   string `json:"error,omitempty"`
}

// CountSucceeded returns how many results are successful.
func CountSucceeded(results []DispatchResult) int {
	n := 0
	for _, r := range results {
		if r.OK {
			n++
		}
	}
	return n
}

// CountNewSends returns how many successful results created a new Send row.
// A replayed job reports zero.
func CountNewSends(results []DispatchResult) int {
	n := 0
	for _, r := range results {
		if r.OK && r.Created {
			n++
		}
	}
	return n
}
