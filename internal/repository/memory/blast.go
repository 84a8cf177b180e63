package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

func (s *Store) CreateBlast(_ context.Context, b *domain.Blast) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blasts[b.ID]; ok {
		return false, nil
	}
	if _, ok := s.campaigns[b.CampaignID]; !ok {
		return false, domain.ErrNotFound
	}
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now().UTC()
	}
	s.blasts[b.ID] = cp
	return true, nil
}

func (s *Store) GetBlast(_ context.Context, id string) (*domain.Blast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blasts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListBlasts(_ context.Context, campaignID string) ([]domain.Blast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Blast
	for _, b := range s.blasts {
		if b.CampaignID == campaignID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) IncrementField(_ context.Context, blastID string, field domain.BlastField, delta int64) error {
	if !field.Valid() {
		return fmt.Errorf("unknown blast field %q", field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blasts[blastID]
	if !ok {
		return domain.ErrNotFound
	}
	switch field {
	case domain.FieldSends:
		b.Sends += delta
	case domain.FieldClicks:
		b.Clicks += delta
	case domain.FieldReplies:
		b.Replies += delta
	case domain.FieldOpens:
		b.Opens += delta
	}
	s.blasts[blastID] = b
	return nil
}

// SyncSendCount sets the sends counter to the blast's Send row count.
func (s *Store) SyncSendCount(_ context.Context, blastID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blasts[blastID]
	if !ok {
		return 0, 0, domain.ErrNotFound
	}
	var n int64
	for key := range s.sendIndex {
		if key.blastID == blastID {
			n++
		}
	}
	prev := b.Sends
	b.Sends = n
	s.blasts[blastID] = b
	return prev, n, nil
}

// RecordSend upserts by (blast, recipient) and attaches the links.
func (s *Store) RecordSend(_ context.Context, send *domain.Send, linkIDs []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blasts[send.BlastID]; !ok {
		return false, domain.ErrNotFound
	}
	for _, id := range linkIDs {
		if _, ok := s.links[id]; !ok {
			return false, fmt.Errorf("short link %s: %w", id, domain.ErrNotFound)
		}
	}

	key := sendKey{send.BlastID, send.RecipientID}
	created := false
	if id, ok := s.sendIndex[key]; ok {
		cur := s.sends[id]
		cur.SentAt = send.SentAt
		s.sends[id] = cur
		send.ID = id
	} else {
		s.sends[send.ID] = *send
		s.sendIndex[key] = send.ID
		created = true
	}
	for _, id := range linkIDs {
		s.sendLinks[id] = send.ID
	}
	return created, nil
}

func (s *Store) ListSends(_ context.Context, blastID string) ([]domain.Send, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Send
	for _, send := range s.sends {
		if send.BlastID == blastID {
			out = append(out, send)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

// SendForLink returns the send a short link was rendered into.
func (s *Store) SendForLink(_ context.Context, shortLinkID string) (*domain.Send, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sid, ok := s.sendLinks[shortLinkID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	send, ok := s.sends[sid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &send, nil
}

func (s *Store) CreateShortLink(_ context.Context, l *domain.ShortLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now().UTC()
	}
	s.links[l.ID] = cp
	return nil
}

func (s *Store) UpdateShortLink(_ context.Context, l *domain.ShortLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.links[l.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.SourceURL = l.SourceURL
	cur.DestinationURL = l.DestinationURL
	s.links[l.ID] = cur
	return nil
}

func (s *Store) GetShortLink(_ context.Context, id string) (*domain.ShortLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (s *Store) RecordHit(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.HitCount++
	t := at.UTC()
	l.LastHitAt = &t
	s.links[id] = l
	return nil
}
