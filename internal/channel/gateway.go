package channel

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httpretry"
)

// GatewayTransport delivers SMS or push messages through an HTTP gateway.
// Requests are throttled to the configured rate.
type GatewayTransport struct {
	kind    domain.ChannelType
	sender  string
	client  *httpretry.JSONClient
	limiter *rate.Limiter
}

type gatewayMessage struct {
	To          string `json:"to"`
	From        string `json:"from,omitempty"`
	Title       string `json:"title,omitempty"`
	Body        string `json:"body"`
	RecipientID string `json:"recipient_id"`
}

// NewGatewayTransport targets baseURL. ratePerSec <= 0 disables throttling.
func NewGatewayTransport(kind domain.ChannelType, baseURL, apiKey, sender string, ratePerSec int, doer httpretry.HTTPDoer) *GatewayTransport {
	client := httpretry.NewJSONClient(baseURL, doer)
	if apiKey != "" {
		client.Header.Set("Authorization", "Bearer "+apiKey)
	}
	g := &GatewayTransport{kind: kind, sender: sender, client: client}
	if ratePerSec > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return g
}

func (g *GatewayTransport) Deliver(ctx context.Context, r *domain.Recipient, content *Content) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	msg := gatewayMessage{
		To:          Address(g.kind, r),
		From:        g.sender,
		Title:       content.Subject,
		Body:        content.Body,
		RecipientID: r.ID,
	}
	return g.client.Do(ctx, http.MethodPost, "/messages", msg, nil)
}
