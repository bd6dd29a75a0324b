package gateways

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
	"github.com/angelmondragon/easevote-backend/pkg/redis"
)

// DeliveryState is what the guard knows about a webhook delivery.
type DeliveryState int

const (
	// DeliveryNew means the caller now owns the delivery and must Complete or Release it.
	DeliveryNew DeliveryState = iota
	// DeliveryInFlight means another request claimed it and has not finished.
	DeliveryInFlight
	// DeliveryDone means the delivery was applied.
	DeliveryDone
)

const (
	deliveryPending = "pending"
	deliveryDone    = "done"

	// A claim left behind by a crashed process lapses after this long and
	// the gateway's next retry is processed.
	deliveryClaimTTL = 2 * time.Minute
)

type guardStore interface {
	redis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// WebhookGuard short-circuits duplicate webhook deliveries.
type WebhookGuard struct {
	store    guardStore
	ttl      time.Duration
	claimTTL time.Duration
}

func NewWebhookGuard(store guardStore, ttl time.Duration) (*WebhookGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	claimTTL := deliveryClaimTTL
	if ttl > 0 && ttl < claimTTL {
		claimTTL = ttl
	}
	return &WebhookGuard{store: store, ttl: ttl, claimTTL: claimTTL}, nil
}

// Claim marks the delivery as in progress. Only a DeliveryNew result
// transfers ownership to the caller.
func (g *WebhookGuard) Claim(ctx context.Context, gateway enums.GatewayName, deliveryID string) (DeliveryState, error) {
	if deliveryID == "" {
		return DeliveryNew, errors.New("delivery id is required")
	}
	key := g.key(gateway, deliveryID)
	set, err := g.store.SetNX(ctx, key, deliveryPending, g.claimTTL)
	if err != nil {
		return DeliveryNew, fmt.Errorf("claim delivery: %w", err)
	}
	if set {
		return DeliveryNew, nil
	}
	value, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// the claim lapsed between SETNX and GET
		return DeliveryInFlight, nil
	case err != nil:
		return DeliveryNew, fmt.Errorf("read delivery: %w", err)
	case value == deliveryDone:
		return DeliveryDone, nil
	}
	return DeliveryInFlight, nil
}

// Complete records a processed delivery for the full dedupe window.
func (g *WebhookGuard) Complete(ctx context.Context, gateway enums.GatewayName, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Set(ctx, g.key(gateway, deliveryID), deliveryDone, g.ttl)
}

// Release forgets a delivery so the gateway's retry is processed.
func (g *WebhookGuard) Release(ctx context.Context, gateway enums.GatewayName, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.key(gateway, deliveryID))
}

func (g *WebhookGuard) key(gateway enums.GatewayName, deliveryID string) string {
	return g.store.IdempotencyKey("webhook-"+string(gateway), deliveryID)
}
