package channel

import (
	"context"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// LogTransport only logs; used when a channel has no gateway configured.
type LogTransport struct {
	Kind domain.ChannelType
}

func (t LogTransport) Deliver(ctx context.Context, r *domain.Recipient, content *Content) error {
	logger.Info("[channel] dry-run delivery",
		"channel", string(t.Kind),
		"recipient_id", r.ID,
		"links", len(content.LinkIDs))
	return ctx.Err()
}
