package channel

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-engine/internal/domain"
)

// LinkShortener turns a destination URL into a tracked short URL.
type LinkShortener interface {
	Shorten(ctx context.Context, destination string) (shortURL, linkID string, err error)
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Renderer expands the liquid template in a campaign body for one recipient
// and replaces every outbound link with a tracked short link.
type Renderer struct {
	engine    *liquid.Engine
	cache     sync.Map // campaign id -> cachedTemplate
	shortener LinkShortener
}

type cachedTemplate struct {
	updatedAt time.Time
	tpl       *liquid.Template
}

// NewRenderer builds a renderer. A nil shortener leaves links untouched.
func NewRenderer(shortener LinkShortener) *Renderer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s, ok := value.(string); ok && s == "" {
			return defaultVal
		}
		return value
	})
	return &Renderer{engine: engine, shortener: shortener}
}

// Render produces the recipient-specific content.
func (r *Renderer) Render(ctx context.Context, c *domain.Campaign, rcpt *domain.Recipient) (*Content, error) {
	tpl, err := r.template(c)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}

	vars := map[string]any{
		"recipient": rcpt.TemplateVars(),
		"campaign": map[string]any{
			"id":    c.ID,
			"title": c.Title,
		},
	}
	body, err := tpl.RenderString(vars)
	if err != nil {
		return nil, fmt.Errorf("render content: %w", err)
	}

	out := &Content{Subject: c.Subject, Body: body}
	if r.shortener == nil {
		return out, nil
	}

	var shortenErr error
	out.Body = urlPattern.ReplaceAllStringFunc(body, func(dest string) string {
		if shortenErr != nil {
			return dest
		}
		short, id, err := r.shortener.Shorten(ctx, dest)
		if err != nil {
			shortenErr = err
			return dest
		}
		out.LinkIDs = append(out.LinkIDs, id)
		return short
	})
	if shortenErr != nil {
		return nil, fmt.Errorf("shorten links: %w", shortenErr)
	}
	return out, nil
}

// template returns the parsed content of c. One entry is kept per campaign
// and replaced when the campaign's updated_at moves.
func (r *Renderer) template(c *domain.Campaign) (*liquid.Template, error) {
	if v, ok := r.cache.Load(c.ID); ok {
		if cached := v.(cachedTemplate); cached.updatedAt.Equal(c.UpdatedAt) {
			return cached.tpl, nil
		}
	}
	tpl, err := r.engine.ParseString(c.Content)
	if err != nil {
		return nil, err
	}
	r.cache.Store(c.ID, cachedTemplate{updatedAt: c.UpdatedAt, tpl: tpl})
	return tpl, nil
}
