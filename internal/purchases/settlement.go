package purchases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/internal/fulfillment"
	"github.com/angelmondragon/easevote-backend/internal/inventory"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
	"github.com/angelmondragon/easevote-backend/pkg/metrics"
	"github.com/angelmondragon/easevote-backend/pkg/outbox"
)

// SettlementCoordinator applies gateway verdicts to purchases exactly once.
type SettlementCoordinator interface {
	Settle(ctx context.Context, input SettleInput) (*SettleResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	Expire(ctx context.Context, purchase *models.Purchase) (bool, error)
	CompleteFulfillment(ctx context.Context, purchaseID uuid.UUID) (bool, error)
}

// CoordinatorParams wires the settlement coordinator.
type CoordinatorParams struct {
	Tx          txRunner
	Repo        Repository
	Ledger      inventory.Ledger
	Fulfillment fulfillment.Engine
	Gateways    gatewaySelector
	Outbox      outbox.Emitter
	Metrics     *metrics.PurchaseMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

type coordinator struct {
	closer
	tx          txRunner
	fulfillment fulfillment.Engine
	gateways    gatewaySelector
	metrics     *metrics.PurchaseMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewSettlementCoordinator builds the settlement coordinator.
func NewSettlementCoordinator(params CoordinatorParams) (SettlementCoordinator, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Fulfillment == nil {
		return nil, fmt.Errorf("fulfillment engine required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway selector required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &coordinator{
		closer:      closer{repo: params.Repo, ledger: params.Ledger, outbox: params.Outbox},
		tx:          params.Tx,
		fulfillment: params.Fulfillment,
		gateways:    params.Gateways,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// Settle applies a verdict. Replays, concurrent deliveries and verdicts for terminal
// purchases are no-ops that return the current purchase.
func (c *coordinator) Settle(ctx context.Context, input SettleInput) (*SettleResult, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	purchase, err := c.load(ctx, reference)
	if err != nil {
		return nil, err
	}
	if c.logg != nil {
		ctx = c.logg.WithFields(ctx, map[string]any{
			"reference": reference,
			"gateway":   purchase.PaymentGateway,
			"verdict":   input.Verdict,
			"source":    input.Source,
		})
	}

	if input.Gateway != "" && input.Gateway != purchase.PaymentGateway {
		c.record(ctx, purchase, "gateway_mismatch")
		return &SettleResult{Purchase: purchase}, nil
	}
	if purchase.Status != enums.PurchaseStatusPending {
		c.record(ctx, purchase, "noop")
		return &SettleResult{Purchase: purchase}, nil
	}

	switch input.Verdict {
	case enums.VerdictSuccess:
		if input.Amount != nil && input.Amount.LessThan(purchase.Amount) {
			return c.failPending(ctx, purchase, reasonUnderpaid)
		}
		if input.Currency != "" && !strings.EqualFold(input.Currency, purchase.Currency) {
			return c.failPending(ctx, purchase, reasonCurrency)
		}
		return c.succeed(ctx, purchase)
	case enums.VerdictFailure:
		return c.failPending(ctx, purchase, reasonFailed)
	default:
		return &SettleResult{Purchase: purchase}, nil
	}
}

// Verify asks the purchase's own gateway for the payment state and settles accordingly.
func (c *coordinator) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	purchase, err := c.load(ctx, reference)
	if err != nil {
		return nil, err
	}
	if purchase.Status != enums.PurchaseStatusPending {
		return &VerifyResult{Purchase: purchase, Message: "Payment already verified"}, nil
	}

	gw, err := c.gateways.ByName(purchase.PaymentGateway)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err), "payment gateway unavailable")
	}
	verification, err := gw.VerifyPayment(ctx, purchase.VerificationReference())
	if err != nil {
		if c.logg != nil {
			c.logg.Error(c.logg.WithReference(ctx, reference), "payment verification failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %v", ErrGatewayVerificationFailed, err), "payment verification failed")
	}
	if !verification.Verdict.IsFinal() {
		return &VerifyResult{Purchase: purchase, Message: "Payment is still pending"}, nil
	}

	input := SettleInput{
		Reference: reference,
		Verdict:   verification.Verdict,
		Gateway:   purchase.PaymentGateway,
		Currency:  verification.Currency,
		Source:    "verify",
	}
	if verification.Verdict == enums.VerdictSuccess {
		amount := verification.Amount
		input.Amount = &amount
	}
	result, err := c.Settle(ctx, input)
	if err != nil {
		return nil, err
	}
	message := "Payment verified successfully"
	if result.Purchase.Status != enums.PurchaseStatusPaid {
		message = "Payment failed"
	}
	return &VerifyResult{Purchase: result.Purchase, Message: message}, nil
}

// Expire closes a lapsed hold. It reports false when the purchase had already settled.
func (c *coordinator) Expire(ctx context.Context, purchase *models.Purchase) (bool, error) {
	if purchase == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "purchase required")
	}
	var closed bool
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		closed, err = c.closePending(ctx, tx, purchase, enums.PurchaseStatusExpired, reasonExpired, c.now().UTC())
		return err
	})
	if err != nil {
		return false, err
	}
	if closed && purchase.Type == enums.PurchaseTypeTicket {
		c.metrics.IncHoldReleased(reasonExpired)
	}
	return closed, nil
}

// CompleteFulfillment retries fulfillment of a PAID purchase whose fulfillment never committed.
func (c *coordinator) CompleteFulfillment(ctx context.Context, purchaseID uuid.UUID) (bool, error) {
	purchase, err := c.repo.FindByID(ctx, purchaseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fail(ErrPurchaseNotFound, "")
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	if purchase.Status != enums.PurchaseStatusPaid || purchase.FulfilledAt != nil {
		return false, nil
	}
	return c.fulfill(ctx, purchase)
}

func (c *coordinator) succeed(ctx context.Context, purchase *models.Purchase) (*SettleResult, error) {
	now := c.now().UTC()
	won := false
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := c.repo.WithTx(tx).TransitionFromPending(ctx, purchase.ID, enums.PurchaseStatusPaid, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition purchase")
		}
		if !ok {
			return nil
		}
		won = true
		if purchase.Type == enums.PurchaseTypeTicket && purchase.TicketTypeID != nil {
			if err := c.ledger.Commit(ctx, tx, *purchase.TicketTypeID, purchase.Quantity()); err != nil {
				return err
			}
		}
		purchase.Status = enums.PurchaseStatusPaid
		purchase.PaidAt = &now
		purchase.UpdatedAt = now
		if err := c.outbox.Emit(ctx, tx, settledEvent(enums.EventPurchasePaid, purchase, "", now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit purchase paid event")
		}
		return nil
	})
	if err != nil {
		c.record(ctx, purchase, "error")
		return nil, err
	}
	if !won {
		return c.lost(ctx, purchase)
	}

	c.record(ctx, purchase, "paid")
	result := &SettleResult{Purchase: purchase, Transitioned: true}
	if _, err := c.fulfill(ctx, purchase); err != nil {
		result.FulfillmentPending = true
		if c.logg != nil {
			c.logg.Error(ctx, "fulfillment deferred to reconciliation", err)
		}
	}
	return result, nil
}

func (c *coordinator) failPending(ctx context.Context, purchase *models.Purchase, reason string) (*SettleResult, error) {
	var closed bool
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		closed, err = c.closePending(ctx, tx, purchase, enums.PurchaseStatusFailed, reason, c.now().UTC())
		return err
	})
	if err != nil {
		c.record(ctx, purchase, "error")
		return nil, err
	}
	if !closed {
		return c.lost(ctx, purchase)
	}
	if purchase.Type == enums.PurchaseTypeTicket {
		c.metrics.IncHoldReleased(reason)
	}
	c.record(ctx, purchase, reason)
	return &SettleResult{Purchase: purchase, Transitioned: true}, nil
}

// lost handles a concurrent settlement that moved the purchase first.
func (c *coordinator) lost(ctx context.Context, purchase *models.Purchase) (*SettleResult, error) {
	current, err := c.repo.FindByID(ctx, purchase.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload purchase")
	}
	c.record(ctx, current, "noop")
	return &SettleResult{Purchase: current}, nil
}

// fulfill claims fulfilled_at and runs the engine in one transaction, so the artifacts and
// the claim commit together and a second caller finds nothing to claim.
func (c *coordinator) fulfill(ctx context.Context, purchase *models.Purchase) (bool, error) {
	now := c.now().UTC()
	var numbers []string
	claimed := false
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		ok, err := repo.ClaimForFulfillment(ctx, purchase.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim fulfillment")
		}
		if !ok {
			return nil
		}
		numbers, err = c.fulfillment.Fulfill(ctx, tx, purchase)
		if err != nil {
			return err
		}
		claimed = true
		if len(numbers) == 0 {
			return nil
		}
		if err := repo.RecordTicketNumbers(ctx, purchase.ID, numbers); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ticket numbers")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if claimed {
		purchase.FulfilledAt = &now
		purchase.TicketNumbers = numbers
	}
	return claimed, nil
}

func (c *coordinator) load(ctx context.Context, reference string) (*models.Purchase, error) {
	purchase, err := c.repo.FindByReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(ErrPurchaseNotFound, "")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	return purchase, nil
}

func (c *coordinator) record(ctx context.Context, purchase *models.Purchase, outcome string) {
	c.metrics.IncSettlement(string(purchase.PaymentGateway), outcome)
	if c.logg == nil {
		return
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"outcome": outcome,
		"status":  purchase.Status,
	}), "purchase settlement processed")
}
