package suppression

import (
	"context"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository defines the data access contract for the opt-out list.
// Implementations return domain.ErrNotFound for missing entries.
type Repository interface {
	// Suppress adds an entry. An existing (recipient, channel) entry is
	// preserved unchanged; created reports which case happened.
	Suppress(ctx context.Context, s *domain.Suppression) (created bool, err error)

	// Remove deletes the entry for (recipientID, channel).
	Remove(ctx context.Context, recipientID string, channel domain.ChannelType) error

	// SuppressedAmong returns the subset of recipientIDs suppressed on
	// channel, in no particular order.
	SuppressedAmong(ctx context.Context, channel domain.ChannelType, recipientIDs []string) ([]string, error)

	// List returns entries matching the filter, newest first, and the
	// total matching count before pagination.
	List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error)
}

// ListFilter controls pagination and filtering for suppression lists. A
// zero Limit returns every match.
type ListFilter struct {
	Channel domain.ChannelType
	Reason  domain.SuppressionReason
	Limit   int
	Offset  int
}
