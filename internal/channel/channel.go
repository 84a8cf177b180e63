// Package channel implements the per-channel capabilities the dispatcher
// needs: rendering a campaign for one recipient and transmitting the result.
//
// Every channel is the same two-step shape; what differs is the Transport
// (SMS gateway, push gateway, SES or SMTP). The Registry maps a
// domain.ChannelType to its Channel at construction time.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
)

var (
	// ErrNoAddress means the recipient has no address for this channel.
	ErrNoAddress = errors.New("recipient has no address for channel")
	// ErrUnsupported means no Channel is registered for a type.
	ErrUnsupported = errors.New("unsupported channel")
)

// Content is a message rendered for one recipient.
type Content struct {
	Subject string
	Body    string
	// LinkIDs are the short links created while rendering Body.
	LinkIDs []string
}

// Channel is the capability the dispatcher fans out over.
type Channel interface {
	Type() domain.ChannelType
	Render(ctx context.Context, c *domain.Campaign, r *domain.Recipient) (*Content, error)
	Transmit(ctx context.Context, r *domain.Recipient, content *Content) error
}

// Transport performs the actual delivery.
type Transport interface {
	Deliver(ctx context.Context, r *domain.Recipient, content *Content) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, r *domain.Recipient, content *Content) error

func (f TransportFunc) Deliver(ctx context.Context, r *domain.Recipient, content *Content) error {
	return f(ctx, r, content)
}

// New combines a renderer and a transport into a Channel of type t.
func New(t domain.ChannelType, renderer *Renderer, transport Transport) Channel {
	return &channel{typ: t, renderer: renderer, transport: transport}
}

type channel struct {
	typ       domain.ChannelType
	renderer  *Renderer
	transport Transport
}

func (c *channel) Type() domain.ChannelType { return c.typ }

// Render fails with ErrNoAddress before any short link is created when r
// cannot be reached on this channel.
func (c *channel) Render(ctx context.Context, camp *domain.Campaign, r *domain.Recipient) (*Content, error) {
	if Address(c.typ, r) == "" {
		return nil, fmt.Errorf("%s: %w", c.typ, ErrNoAddress)
	}
	return c.renderer.Render(ctx, camp, r)
}

func (c *channel) Transmit(ctx context.Context, r *domain.Recipient, content *Content) error {
	if Address(c.typ, r) == "" {
		return fmt.Errorf("%s: %w", c.typ, ErrNoAddress)
	}
	return c.transport.Deliver(ctx, r, content)
}

// Address returns the recipient's address for channel t.
func Address(t domain.ChannelType, r *domain.Recipient) string {
	switch t {
	case domain.ChannelSMS:
		return r.Phone
	case domain.ChannelPush:
		return r.DeviceToken
	case domain.ChannelEmail:
		return r.Email
	}
	return ""
}

// Registry maps channel types to their implementation.
type Registry map[domain.ChannelType]Channel

// NewRegistry indexes channels by their Type.
func NewRegistry(channels ...Channel) Registry {
	reg := make(Registry, len(channels))
	for _, ch := range channels {
		reg[ch.Type()] = ch
	}
	return reg
}

// Get returns the channel for t or ErrUnsupported.
func (r Registry) Get(t domain.ChannelType) (Channel, error) {
	ch, ok := r[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
	return ch, nil
}
