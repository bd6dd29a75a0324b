package gateways

import (
	"context"
	"strings"

	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/easevote-backend/pkg/stripe"
)

// Configure builds every variant whose credentials are present.
func Configure(ctx context.Context, cfg *config.Config, logg *logger.Logger) ([]Gateway, error) {
	var configured []Gateway
	if cfg.Paystack.Enabled() {
		gw, err := NewPaystack(cfg.Paystack, cfg.Gateway.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		configured = append(configured, gw)
	}
	if cfg.Flutterwave.Enabled() {
		gw, err := NewFlutterwave(cfg.Flutterwave, cfg.Gateway.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		configured = append(configured, gw)
	}
	if cfg.Stripe.Enabled() {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		cancelURL := strings.TrimRight(cfg.App.FrontendURL, "/") + cfg.Stripe.CancelPath
		gw, err := NewStripe(client.SigningSecret(), cancelURL, client)
		if err != nil {
			return nil, err
		}
		configured = append(configured, gw)
	}
	return configured, nil
}
