package domain

import "time"

// ShortLink maps an opaque id to a destination URL and counts hits.
type ShortLink struct {
	ID             string     `json:"id" db:"id"`
	SourceURL      string     `json:"source_url" db:"source_url"`
	DestinationURL string     `json:"destination_url" db:"destination_url"`
	HitCount       int64      `json:"hit_count" db:"hit_count"`
	LastHitAt      *time.Time `json:"last_hit_at,omitempty" db:"last_hit_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// SendLink attributes a rendered short link to the send that carried it.
type SendLink struct {
	SendID      string `json:"send_id" db:"send_id"`
	ShortLinkID string `json:"short_link_id" db:"short_link_id"`
}

// ClickTarget is the fully resolved chain behind a short link: the link,
// the send that carried it, that send's blast, campaign and recipient.
type ClickTarget struct {
	Link      ShortLink
	Send      Send
	Blast     Blast
	Campaign  Campaign
	Recipient Recipient
}
