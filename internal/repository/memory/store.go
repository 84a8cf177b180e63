// Package memory provides an in-process implementation of every store the
// engine uses. It backs tests and single-binary local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

type sendKey struct{ blastID, recipientID string }

// Store keeps all records in maps behind one mutex, so every counter
// increment is atomic with respect to other writers.
type Store struct {
	mu sync.RWMutex

	users      map[string]domain.User
	lists      map[string]domain.RecipientList
	members    map[string][]string
	recipients map[string]domain.Recipient

	campaigns map[string]domain.Campaign
	blasts    map[string]domain.Blast
	sends     map[string]domain.Send
	sendIndex map[sendKey]string
	links     map[string]domain.ShortLink
	sendLinks map[string]string // short link id -> send id

	suppressions map[suppressionKey]domain.Suppression

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:      make(map[string]domain.User),
		lists:      make(map[string]domain.RecipientList),
		members:    make(map[string][]string),
		recipients: make(map[string]domain.Recipient),
		campaigns:  make(map[string]domain.Campaign),
		blasts:     make(map[string]domain.Blast),
		sends:      make(map[string]domain.Send),
		sendIndex:  make(map[sendKey]string),
		links:      make(map[string]domain.ShortLink),
		sendLinks:  make(map[string]string),
		now:        time.Now,

		suppressions: make(map[suppressionKey]domain.Suppression),
	}
}

// --- seeding -------------------------------------------------------------

func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutList stores a list and replaces its membership.
func (s *Store) PutList(l domain.RecipientList, recipientIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[l.Ref] = l
	s.members[l.Ref] = append([]string(nil), recipientIDs...)
}

func (s *Store) PutRecipient(r domain.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[r.ID] = r
}

// --- users, lists, recipients -------------------------------------------

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetList(_ context.Context, ref string) (*domain.RecipientList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

// ResolveList returns the live members of a live list.
func (s *Store) ResolveList(ctx context.Context, ref string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[ref]
	if !ok || l.IsDeleted() {
		return nil, domain.ErrNotFound
	}
	var out []string
	for _, id := range s.members[ref] {
		if r, ok := s.recipients[id]; ok && !r.IsDeleted() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Store) GetRecipient(_ context.Context, id string) (*domain.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

// --- campaigns ------------------------------------------------------------

func (s *Store) Get(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.hydrate(c), nil
}

// hydrate copies c and fills derived fields. Caller holds the lock.
func (s *Store) hydrate(c domain.Campaign) *domain.Campaign {
	c.ListRefs = append([]string(nil), c.ListRefs...)
	c.BlastCount = 0
	for _, b := range s.blasts {
		if b.CampaignID == c.ID {
			c.BlastCount++
		}
	}
	return &c
}

func (s *Store) ListByDomain(_ context.Context, domainID string) ([]domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if owner, ok := s.users[c.OwnerID]; ok && owner.DomainID == domainID {
			out = append(out, *s.hydrate(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListScheduled returns campaigns with a scheduler task attached.
func (s *Store) ListScheduled(_ context.Context) ([]domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.IsScheduled() {
			out = append(out, *s.hydrate(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Create(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.ListRefs = append([]string(nil), c.ListRefs...)
	s.campaigns[c.ID] = cp
	return nil
}

func (s *Store) Update(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.campaigns[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.Title = c.Title
	cur.Subject = c.Subject
	cur.Content = c.Content
	cur.ListRefs = append([]string(nil), c.ListRefs...)
	cur.UpdatedAt = c.UpdatedAt
	s.campaigns[c.ID] = cur
	return nil
}

func (s *Store) SetSchedule(_ context.Context, id string, taskID *string, spec *domain.ScheduleSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.TaskID = taskID
	if spec != nil {
		c.StartAt, c.EndAt, c.FrequencyID = spec.StartAt, spec.EndAt, spec.Frequency
	} else {
		c.StartAt, c.EndAt, c.FrequencyID = nil, nil, nil
	}
	s.campaigns[id] = c
	return nil
}

// Delete cascades to blasts, sends and send links.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return domain.ErrNotFound
	}
	for bid, b := range s.blasts {
		if b.CampaignID != id {
			continue
		}
		for sid, send := range s.sends {
			if send.BlastID != bid {
				continue
			}
			for lid, owner := range s.sendLinks {
				if owner == sid {
					delete(s.sendLinks, lid)
				}
			}
			delete(s.sendIndex, sendKey{send.BlastID, send.RecipientID})
			delete(s.sends, sid)
		}
		delete(s.blasts, bid)
	}
	delete(s.campaigns, id)
	return nil
}

func (s *Store) ListRefs(_ context.Context, campaignID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]string(nil), c.ListRefs...), nil
}

// CampaignCount reports how many campaigns are stored.
func (s *Store) CampaignCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.campaigns)
}

// ShortLinks returns every stored short link, oldest first.
func (s *Store) ShortLinks() []domain.ShortLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ShortLink, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
