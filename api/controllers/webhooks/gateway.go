package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/easevote-backend/api/responses"
	"github.com/angelmondragon/easevote-backend/internal/gateways"
	"github.com/angelmondragon/easevote-backend/internal/purchases"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type gatewayResolver interface {
	ByName(name enums.GatewayName) (gateways.Gateway, error)
}

type settler interface {
	Settle(ctx context.Context, input purchases.SettleInput) (*purchases.SettleResult, error)
}

type webhookGuard interface {
	Claim(ctx context.Context, gateway enums.GatewayName, deliveryID string) (gateways.DeliveryState, error)
	Complete(ctx context.Context, gateway enums.GatewayName, deliveryID string) error
	Release(ctx context.Context, gateway enums.GatewayName, deliveryID string) error
}

// GatewayWebhook authenticates a gateway callback and applies its verdict.
// Valid deliveries are acknowledged with 200 even when the purchase was
// already settled or the event carries no outcome.
func GatewayWebhook(resolver gatewayResolver, svc settler, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if resolver == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		name, err := enums.ParseGatewayName(chi.URLParam(r, "gateway"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment gateway"))
			return
		}
		gw, err := resolver.ByName(name)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment gateway not configured"))
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "gateway", string(name))
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		event, err := gw.ParseWebhook(ctx, r.Header, payload)
		switch {
		case errors.Is(err, gateways.ErrInvalidSignature):
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature"))
			return
		case errors.Is(err, gateways.ErrMalformedWebhook):
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload"))
			return
		case err != nil:
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse webhook"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"reference":  event.Reference,
				"event_type": event.EventType,
			})
		}

		if !event.Actionable() {
			if logg != nil {
				logg.Info(ctx, "webhook.ignored")
			}
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		deliveryID := strings.TrimSpace(event.DeliveryID)
		guarded := guard != nil && deliveryID != ""
		if guarded {
			state, err := guard.Claim(ctx, name, deliveryID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			switch state {
			case gateways.DeliveryDone:
				if logg != nil {
					logg.Info(ctx, "webhook.duplicate")
				}
				responses.WriteSuccess(w, map[string]bool{"received": true})
				return
			case gateways.DeliveryInFlight:
				// a non-2xx makes the gateway retry once the other request finishes
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "delivery is being processed"))
				return
			}
		}

		result, err := svc.Settle(ctx, purchases.SettleInput{
			Reference: event.Reference,
			Verdict:   event.Verdict,
			Gateway:   name,
			Amount:    event.Amount,
			Currency:  event.Currency,
			Source:    "webhook",
		})
		if err != nil && !errors.Is(err, purchases.ErrPurchaseNotFound) {
			if guarded {
				if relErr := guard.Release(context.WithoutCancel(ctx), name, deliveryID); relErr != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "error", relErr.Error()), "webhook.release_failed")
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if guarded {
			if doneErr := guard.Complete(context.WithoutCancel(ctx), name, deliveryID); doneErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", doneErr.Error()), "webhook.complete_failed")
			}
		}
		if err != nil {
			// Not ours; acknowledging stops the gateway from retrying forever.
			if logg != nil {
				logg.Warn(ctx, "webhook.unknown_reference")
			}
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"status":       string(result.Purchase.Status),
				"transitioned": result.Transitioned,
			}), "webhook.processed")
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
