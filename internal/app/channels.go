package app

import (
	"context"
	"fmt"

	"github.com/ignite/campaign-engine/internal/channel"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httpretry"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// buildChannels registers one channel per supported type. A channel whose
// transport is disabled still renders and records sends but only logs the
// delivery.
func buildChannels(ctx context.Context, cfg config.ChannelsConfig, shortener channel.LinkShortener) (channel.Registry, error) {
	renderer := channel.NewRenderer(shortener)

	sms := gatewayTransport(domain.ChannelSMS, cfg.SMS)
	push := gatewayTransport(domain.ChannelPush, cfg.Push)
	email, err := emailTransport(ctx, cfg.Email)
	if err != nil {
		return nil, err
	}

	return channel.NewRegistry(
		channel.New(domain.ChannelSMS, renderer, sms),
		channel.New(domain.ChannelPush, renderer, push),
		channel.New(domain.ChannelEmail, renderer, email),
	), nil
}

func gatewayTransport(kind domain.ChannelType, cfg config.GatewayConfig) channel.Transport {
	if !cfg.Enabled || cfg.GatewayURL == "" {
		logger.Warn("[app] channel has no gateway, deliveries are logged only", "channel", string(kind))
		return channel.LogTransport{Kind: kind}
	}
	return channel.NewGatewayTransport(kind, cfg.GatewayURL, cfg.APIKey, cfg.Sender, cfg.RatePerSec, httpretry.NewRetryClient(nil, 3))
}

func emailTransport(ctx context.Context, cfg config.EmailConfig) (channel.Transport, error) {
	if !cfg.Enabled {
		logger.Warn("[app] email transport disabled, deliveries are logged only")
		return channel.LogTransport{Kind: domain.ChannelEmail}, nil
	}
	switch cfg.Driver {
	case "smtp":
		dialer := channel.NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
		return channel.NewSMTPTransport(dialer, cfg.From, cfg.FromName, cfg.RatePerSec), nil
	default:
		client, err := channel.NewSESClient(ctx, cfg.Region, cfg.AccessKey, cfg.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		return channel.NewSESTransport(client, cfg.From, cfg.FromName, cfg.RatePerSec), nil
	}
}
