package memory

import (
	"context"
	"sort"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

type suppressionKey struct {
	recipientID string
	channel     domain.ChannelType
}

// SuppressionRepo is the opt-out view of a Store.
type SuppressionRepo struct{ s *Store }

// Suppressions returns the store's opt-out repository.
func (s *Store) Suppressions() *SuppressionRepo { return &SuppressionRepo{s: s} }

// Suppress stores entry unless the pair is already suppressed.
func (r *SuppressionRepo) Suppress(_ context.Context, entry *domain.Suppression) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := suppressionKey{entry.RecipientID, entry.Channel}
	if _, ok := r.s.suppressions[k]; ok {
		return false, nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.now().UTC()
	}
	r.s.suppressions[k] = *entry
	return true, nil
}

func (r *SuppressionRepo) Remove(_ context.Context, recipientID string, channel domain.ChannelType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := suppressionKey{recipientID, channel}
	if _, ok := r.s.suppressions[k]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.suppressions, k)
	return nil
}

func (r *SuppressionRepo) SuppressedAmong(_ context.Context, channel domain.ChannelType, ids []string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var hits []string
	for _, id := range ids {
		if _, ok := r.s.suppressions[suppressionKey{id, channel}]; ok {
			hits = append(hits, id)
		}
	}
	return hits, nil
}

// List returns matches newest first.
func (r *SuppressionRepo) List(_ context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	r.s.mu.RLock()
	matched := make([]domain.Suppression, 0, len(r.s.suppressions))
	for _, e := range r.s.suppressions {
		if f.Channel != "" && e.Channel != f.Channel {
			continue
		}
		if f.Reason != "" && e.Reason != f.Reason {
			continue
		}
		matched = append(matched, e)
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].RecipientID < matched[j].RecipientID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if f.Offset >= total {
		return []domain.Suppression{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}
