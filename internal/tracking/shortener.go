package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Shortener creates one signed short link per outbound URL. It satisfies
// channel.LinkShortener.
type Shortener struct {
	links  LinkStore
	signer *Signer
	base   string
	ttl    time.Duration
}

// NewShortener issues links under base, valid for ttl.
func NewShortener(links LinkStore, signer *Signer, base string, ttl time.Duration) *Shortener {
	return &Shortener{links: links, signer: signer, base: base, ttl: ttl}
}

func (s *Shortener) Shorten(ctx context.Context, destination string) (string, string, error) {
	link := &domain.ShortLink{
		ID:             uuid.New().String(),
		DestinationURL: destination,
	}
	link.SourceURL = s.signer.SignedURL(s.base, link.ID, s.ttl)
	if err := s.links.CreateShortLink(ctx, link); err != nil {
		return "", "", fmt.Errorf("create short link: %w", err)
	}
	return link.SourceURL, link.ID, nil
}
