package domain

// AuditEventType enumerates the lifecycle events emitted to the audit log.
type AuditEventType string

const (
	AuditCreated     AuditEventType = "created"
	AuditUpdated     AuditEventType = "updated"
	AuditScheduled   AuditEventType = "scheduled"
	AuditUnscheduled AuditEventType = "unscheduled"
	AuditSent        AuditEventType = "sent"
	AuditDeleted     AuditEventType = "deleted"
	AuditClicked     AuditEventType = "clicked"
)

// Source tables referenced by audit events.
const (
	TableCampaigns  = "campaigns"
	TableBlasts     = "blasts"
	TableShortLinks = "short_links"
)

// AuditEvent is an append-only lifecycle record. The core emits these and
// never reads them back.
type AuditEvent struct {
	ActorID     string            `json:"actor_id"`
	Type        AuditEventType    `json:"event_type"`
	SourceTable string            `json:"source_table"`
	SourceID    string            `json:"source_id"`
	Params      map[string]string `json:"params,omitempty"`
}
