package purchases

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/internal/inventory"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/outbox"
	"github.com/angelmondragon/easevote-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Hold release reasons.
const (
	reasonGatewayInit = "gateway_initialization_failed"
	reasonFailed      = "payment_failed"
	reasonUnderpaid   = "underpaid"
	reasonCurrency    = "currency_mismatch"
	reasonExpired     = "expired"
)

// closer owns the PENDING -> FAILED|EXPIRED transition shared by the gateway-init
// rollback, failed settlement and the expiry reaper.
type closer struct {
	repo   Repository
	ledger inventory.Ledger
	outbox outbox.Emitter
}

// closePending reports false when the purchase had already left PENDING.
func (c *closer) closePending(ctx context.Context, tx *gorm.DB, purchase *models.Purchase, to enums.PurchaseStatus, reason string, at time.Time) (bool, error) {
	ok, err := c.repo.WithTx(tx).TransitionFromPending(ctx, purchase.ID, to, at)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition purchase")
	}
	if !ok {
		return false, nil
	}
	if purchase.Type == enums.PurchaseTypeTicket && purchase.TicketTypeID != nil {
		if err := c.ledger.Release(ctx, tx, *purchase.TicketTypeID, purchase.Quantity()); err != nil {
			return false, err
		}
	}

	eventType := enums.EventPurchaseFailed
	if to == enums.PurchaseStatusExpired {
		eventType = enums.EventPurchaseExpired
	}
	purchase.Status = to
	purchase.UpdatedAt = at
	if err := c.outbox.Emit(ctx, tx, settledEvent(eventType, purchase, reason, at)); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit purchase event")
	}
	return true, nil
}

func settledEvent(eventType enums.OutboxEventType, purchase *models.Purchase, reason string, at time.Time) outbox.DomainEvent {
	actor := &outbox.ActorRef{UserID: purchase.UserID, Source: string(purchase.Source)}
	if eventType == enums.EventPurchaseExpired {
		actor = outbox.SystemActor("hold-expiry")
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchase.ID,
		Actor:         actor,
		Data: payloads.PurchaseSettledEvent{
			PurchaseID:       purchase.ID,
			PaymentReference: purchase.PaymentReference,
			EventID:          purchase.EventID,
			Type:             purchase.Type,
			Status:           purchase.Status,
			Gateway:          purchase.PaymentGateway,
			Amount:           purchase.Amount.StringFixed(2),
			Currency:         purchase.Currency,
			Quantity:         purchase.Quantity(),
			CustomerEmail:    purchase.CustomerEmail,
			Reason:           reason,
			OccurredAt:       at,
		},
		Version:    outbox.EnvelopeVersion,
		OccurredAt: at,
	}
}
