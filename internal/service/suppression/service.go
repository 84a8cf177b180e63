package suppression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// filterBatch bounds the ids sent to the repository per lookup.
const filterBatch = 1000

// Service implements opt-out business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Suppress adds an entry. Idempotent: if the recipient is already
// suppressed on the channel the existing record is preserved.
func (s *Service) Suppress(ctx context.Context, entry domain.Suppression) error {
	entry.RecipientID = strings.TrimSpace(entry.RecipientID)
	if entry.RecipientID == "" {
		return errRecipientRequired
	}
	if !entry.Channel.Valid() {
		return apperr.InvalidUsage("channel", fmt.Sprintf("unsupported channel %q", entry.Channel))
	}
	if entry.Reason == "" {
		entry.Reason = domain.ReasonManual
	}
	if !entry.Reason.Valid() {
		return apperr.InvalidUsage("reason", fmt.Sprintf("unknown reason %q", entry.Reason))
	}
	if entry.Source == "" {
		entry.Source = domain.SourceManual
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	created, err := s.repo.Suppress(ctx, &entry)
	if err != nil {
		return apperr.Internal(fmt.Errorf("suppress %s: %w", entry.RecipientID, err))
	}
	if created {
		logger.Info("[suppression.Service] recipient suppressed",
			"recipient_id", entry.RecipientID,
			"channel", string(entry.Channel),
			"reason", string(entry.Reason))
	}
	return nil
}

// Remove deletes an entry.
func (s *Service) Remove(ctx context.Context, recipientID string, channel domain.ChannelType) error {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return errRecipientRequired
	}
	err := s.repo.Remove(ctx, recipientID, channel)
	if errors.Is(err, domain.ErrNotFound) {
		return apperr.NotFound("suppression", recipientID)
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// IsSuppressed reports whether the recipient is excluded from channel.
func (s *Service) IsSuppressed(ctx context.Context, recipientID string, channel domain.ChannelType) (bool, error) {
	hits, err := s.repo.SuppressedAmong(ctx, channel, []string{recipientID})
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}

// Filter drops suppressed recipients from ids, preserving order. It returns
// the kept ids and how many were dropped.
func (s *Service) Filter(ctx context.Context, channel domain.ChannelType, ids []string) ([]string, int, error) {
	suppressed := make(map[string]struct{})
	for start := 0; start < len(ids); start += filterBatch {
		end := min(start+filterBatch, len(ids))
		hits, err := s.repo.SuppressedAmong(ctx, channel, ids[start:end])
		if err != nil {
			return nil, 0, fmt.Errorf("check suppressions: %w", err)
		}
		for _, id := range hits {
			suppressed[id] = struct{}{}
		}
	}
	if len(suppressed) == 0 {
		return ids, 0, nil
	}

	kept := make([]string, 0, len(ids)-len(suppressed))
	for _, id := range ids {
		if _, ok := suppressed[id]; !ok {
			kept = append(kept, id)
		}
	}
	return kept, len(ids) - len(kept), nil
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	out, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return out, total, nil
}

// Stats returns aggregate counts grouped by reason and channel.
type Stats struct {
	Total       int            `json:"total"`
	ByReason    map[string]int `json:"by_reason"`
	ByChannel   map[string]int `json:"by_channel"`
	Last24Hours int            `json:"last_24_hours"`
}

// GetStats computes suppression statistics over every entry.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	cutoff := s.now().Add(-24 * time.Hour)
	stats := &Stats{
		Total:     total,
		ByReason:  make(map[string]int),
		ByChannel: make(map[string]int),
	}
	for _, e := range entries {
		stats.ByReason[string(e.Reason)]++
		stats.ByChannel[string(e.Channel)]++
		if e.CreatedAt.After(cutoff) {
			stats.Last24Hours++
		}
	}
	return stats, nil
}
