package sending

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// ErrNoRecipients means every list resolved to nothing, either because the
// lists are empty or because each one failed.
var ErrNoRecipients = errors.New("campaign has no recipients")

// Directory resolves a recipient list into recipient ids. Implementations
// paginate internally and return the complete set.
type Directory interface {
	ResolveList(ctx context.Context, listRef string) ([]string, error)
}

// ListSource returns the list references associated with a campaign.
type ListSource interface {
	ListRefs(ctx context.Context, campaignID string) ([]string, error)
}

// Resolver turns a campaign's list references into a deduplicated
// recipient set.
type Resolver struct {
	lists       ListSource
	directory   Directory
	listTimeout time.Duration
}

// NewResolver creates a Resolver. listTimeout bounds each list lookup; zero
// means no extra bound beyond the caller's context.
func NewResolver(lists ListSource, directory Directory, listTimeout time.Duration) *Resolver {
	return &Resolver{lists: lists, directory: directory, listTimeout: listTimeout}
}

// Resolve looks up every list of the campaign in parallel. A list that fails
// contributes nothing; it does not abort the others. Recipients keep the
// order in which they were first seen, lists taken in association order.
func (r *Resolver) Resolve(ctx context.Context, campaignID string) ([]string, error) {
	refs, err := r.lists.ListRefs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return r.ResolveRefs(ctx, campaignID, refs)
}

// ResolveRefs is Resolve for an already loaded set of list references.
func (r *Resolver) ResolveRefs(ctx context.Context, campaignID string, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return nil, ErrNoRecipients
	}

	perList := make([][]string, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			perList[i] = r.resolveOne(ctx, campaignID, ref)
		}(i, ref)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var out []string
	for _, ids := range perList {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, campaignID, ref string) []string {
	if r.listTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.listTimeout)
		defer cancel()
	}
	start := time.Now()
	ids, err := r.directory.ResolveList(ctx, ref)
	if err != nil {
		logger.Warn("[sending.Resolver] list resolution failed",
			"campaign_id", campaignID,
			"list_ref", ref,
			"duration", time.Since(start),
			"error", err)
		return nil
	}
	return ids
}
