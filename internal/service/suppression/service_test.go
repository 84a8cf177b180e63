package suppression

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu      sync.RWMutex
	store   map[string]*domain.Suppression // keyed by "channel:recipient"
	lookups int
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*domain.Suppression)}
}

func key(recipientID string, ch domain.ChannelType) string {
	return string(ch) + ":" + recipientID
}

func (m *mockRepo) Suppress(_ context.Context, s *domain.Suppression) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(s.RecipientID, s.Channel)
	if _, exists := m.store[k]; exists {
		return false, nil
	}
	cp := *s
	m.store[k] = &cp
	return true, nil
}

func (m *mockRepo) Remove(_ context.Context, recipientID string, ch domain.ChannelType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(recipientID, ch)
	if _, ok := m.store[k]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, k)
	return nil
}

func (m *mockRepo) SuppressedAmong(_ context.Context, ch domain.ChannelType, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	var out []string
	for _, id := range ids {
		if _, ok := m.store[key(id, ch)]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.Suppression, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Suppression
	for _, s := range m.store {
		if f.Channel != "" && s.Channel != f.Channel {
			continue
		}
		if f.Reason != "" && s.Reason != f.Reason {
			continue
		}
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, len(result), nil
}

func optOut(id string, ch domain.ChannelType) domain.Suppression {
	return domain.Suppression{RecipientID: id, Channel: ch, Reason: domain.ReasonOptOut, Source: domain.SourceEngagement}
}

func TestSuppress_AddsRecipientToList(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if err := svc.Suppress(ctx, optOut(" r1 ", domain.ChannelSMS)); err != nil {
		t.Fatalf("Suppress: %v", err)
	}

	ok, err := svc.IsSuppressed(ctx, "r1", domain.ChannelSMS)
	if err != nil {
		t.Fatalf("IsSuppressed: %v", err)
	}
	if !ok {
		t.Error("expected recipient to be suppressed after Suppress()")
	}
	ok, _ = svc.IsSuppressed(ctx, "r1", domain.ChannelEmail)
	if ok {
		t.Error("suppression must be per channel")
	}
}

func TestSuppress_Idempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Suppress(ctx, optOut("dup", domain.ChannelSMS)); err != nil {
			t.Fatalf("Suppress #%d: %v", i, err)
		}
	}

	_, total, _ := svc.List(ctx, ListFilter{})
	if total != 1 {
		t.Errorf("expected 1 suppression, got %d", total)
	}
}

func TestSuppress_Validation(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	cases := map[string]domain.Suppression{
		"recipient_id": {Channel: domain.ChannelSMS},
		"channel":      {RecipientID: "r1", Channel: "fax"},
		"reason":       {RecipientID: "r1", Channel: domain.ChannelSMS, Reason: "bored"},
	}
	for field, entry := range cases {
		err := svc.Suppress(ctx, entry)
		if !apperr.Is(err, apperr.KindInvalidUsage) {
			t.Errorf("%s: expected invalid usage, got %v", field, err)
		}
	}
}

func TestSuppress_DefaultsReasonAndSource(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if err := svc.Suppress(context.Background(), domain.Suppression{RecipientID: "r1", Channel: domain.ChannelEmail}); err != nil {
		t.Fatalf("Suppress: %v", err)
	}
	got := repo.store[key("r1", domain.ChannelEmail)]
	if got.Reason != domain.ReasonManual || got.Source != domain.SourceManual {
		t.Errorf("unexpected defaults: reason=%s source=%s", got.Reason, got.Source)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("expected created_at %v, got %v", now, got.CreatedAt)
	}
}

func TestRemove(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_ = svc.Suppress(ctx, optOut("r1", domain.ChannelSMS))
	if err := svc.Remove(ctx, "r1", domain.ChannelSMS); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := svc.IsSuppressed(ctx, "r1", domain.ChannelSMS); ok {
		t.Error("expected recipient to no longer be suppressed after Remove()")
	}

	err := svc.Remove(ctx, "ghost", domain.ChannelSMS)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestFilter_PreservesOrderAndBatches(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	ids := make([]string, 0, 2500)
	for i := 0; i < 2500; i++ {
		ids = append(ids, fmt.Sprintf("r%04d", i))
	}
	_ = svc.Suppress(ctx, optOut("r0003", domain.ChannelSMS))
	_ = svc.Suppress(ctx, optOut("r2400", domain.ChannelSMS))
	_ = svc.Suppress(ctx, optOut("r0005", domain.ChannelEmail))
	repo.lookups = 0

	kept, dropped, err := svc.Filter(ctx, domain.ChannelSMS, ids)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if dropped != 2 || len(kept) != 2498 {
		t.Fatalf("expected 2 dropped and 2498 kept, got %d and %d", dropped, len(kept))
	}
	if kept[3] != "r0004" || kept[4] != "r0005" {
		t.Errorf("order not preserved: %v", kept[:6])
	}
	if repo.lookups != 3 {
		t.Errorf("expected 3 batched lookups, got %d", repo.lookups)
	}
}

func TestFilter_NothingSuppressed(t *testing.T) {
	svc := NewService(newMockRepo())
	ids := []string{"a", "b"}
	kept, dropped, err := svc.Filter(context.Background(), domain.ChannelPush, ids)
	if err != nil || dropped != 0 || len(kept) != 2 {
		t.Fatalf("unexpected result: %v %d %v", kept, dropped, err)
	}
}

func TestGetStats_AggregatesByReasonAndChannel(t *testing.T) {
	svc := NewService(newMockRepo())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	old := optOut("a", domain.ChannelSMS)
	old.CreatedAt = now.Add(-48 * time.Hour)
	_ = svc.Suppress(ctx, old)
	_ = svc.Suppress(ctx, optOut("b", domain.ChannelSMS))
	_ = svc.Suppress(ctx, domain.Suppression{RecipientID: "c", Channel: domain.ChannelEmail, Reason: domain.ReasonHardBounce})

	stats, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected total=3, got %d", stats.Total)
	}
	if stats.ByReason["opt_out"] != 2 {
		t.Errorf("expected 2 opt-outs, got %d", stats.ByReason["opt_out"])
	}
	if stats.ByChannel["email"] != 1 {
		t.Errorf("expected 1 email suppression, got %d", stats.ByChannel["email"])
	}
	if stats.Last24Hours != 2 {
		t.Errorf("expected 2 in the last 24h, got %d", stats.Last24Hours)
	}
}
