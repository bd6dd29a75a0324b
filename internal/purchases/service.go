package purchases

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/internal/gateways"
	"github.com/angelmondragon/easevote-backend/internal/inventory"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
	"github.com/angelmondragon/easevote-backend/pkg/metrics"
	"github.com/angelmondragon/easevote-backend/pkg/outbox"
)

type eventReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	FindTicketType(ctx context.Context, eventID, ticketTypeID uuid.UUID) (*models.TicketType, error)
	FindCandidate(ctx context.Context, eventID, categoryID, candidateID uuid.UUID) (*models.Candidate, error)
}

type gatewaySelector interface {
	Active(ctx context.Context) (gateways.Gateway, error)
	ByName(name enums.GatewayName) (gateways.Gateway, error)
}

// ReservationManager places inventory holds and opens gateway checkouts.
type ReservationManager interface {
	ReserveTickets(ctx context.Context, input TicketReservationInput) (*ReservationResult, error)
	ReserveVotes(ctx context.Context, input VoteReservationInput) (*ReservationResult, error)
	GetByReference(ctx context.Context, reference string) (*models.Purchase, error)
}

// ManagerParams wires the reservation manager.
type ManagerParams struct {
	Tx              txRunner
	Repo            Repository
	Events          eventReader
	Ledger          inventory.Ledger
	Gateways        gatewaySelector
	Outbox          outbox.Emitter
	Metrics         *metrics.PurchaseMetrics
	Logger          *logger.Logger
	HoldDuration    time.Duration
	CallbackURL     string
	DefaultCurrency string
	Now             func() time.Time
}

type manager struct {
	closer
	tx          txRunner
	events      eventReader
	gateways    gatewaySelector
	metrics     *metrics.PurchaseMetrics
	logg        *logger.Logger
	hold        time.Duration
	callbackURL string
	currency    string
	now         func() time.Time
}

// DefaultHoldDuration is slightly longer than the gateways' 30 minute checkout window.
const DefaultHoldDuration = 30*time.Minute + 30*time.Second

// NewReservationManager builds the reservation manager.
func NewReservationManager(params ManagerParams) (ReservationManager, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("events reader required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway selector required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	hold := params.HoldDuration
	if hold <= 0 {
		hold = DefaultHoldDuration
	}
	currency := strings.ToUpper(strings.TrimSpace(params.DefaultCurrency))
	if currency == "" {
		currency = "GHS"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &manager{
		closer:      closer{repo: params.Repo, ledger: params.Ledger, outbox: params.Outbox},
		tx:          params.Tx,
		events:      params.Events,
		gateways:    params.Gateways,
		metrics:     params.Metrics,
		logg:        params.Logger,
		hold:        hold,
		callbackURL: params.CallbackURL,
		currency:    currency,
		now:         now,
	}, nil
}

func (m *manager) ReserveTickets(ctx context.Context, input TicketReservationInput) (*ReservationResult, error) {
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if err := validateCustomer(input.Customer); err != nil {
		return nil, err
	}
	event, err := m.loadPurchasableEvent(ctx, input.EventID, enums.EventTypeTicketing)
	if err != nil {
		m.metrics.IncReservation(string(enums.PurchaseTypeTicket), outcomeFor(err))
		return nil, err
	}
	ticketType, err := m.events.FindTicketType(ctx, event.ID, input.TicketTypeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m.metrics.IncReservation(string(enums.PurchaseTypeTicket), "rejected")
		return nil, fail(ErrTicketTypeNotFound, "")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket type")
	}

	qty := input.Quantity
	purchase := &models.Purchase{
		EventID:        event.ID,
		UserID:         input.UserID,
		Type:           enums.PurchaseTypeTicket,
		Source:         sourceOrDefault(input.Source),
		Amount:         ticketType.Price.Mul(decimal.NewFromInt(int64(qty))),
		Currency:       m.currencyFor(event),
		TicketTypeID:   &ticketType.ID,
		TicketQuantity: &qty,
		CustomerEmail:  strings.TrimSpace(input.Customer.Email),
		CustomerName:   input.Customer.namePtr(),
		CustomerPhone:  input.Customer.phonePtr(),
	}
	description := fmt.Sprintf("%d x %s - %s", qty, ticketType.Name, event.Title)
	return m.place(ctx, purchase, description)
}

func (m *manager) ReserveVotes(ctx context.Context, input VoteReservationInput) (*ReservationResult, error) {
	if err := validateCustomer(input.Customer); err != nil {
		return nil, err
	}
	event, err := m.loadPurchasableEvent(ctx, input.EventID, enums.EventTypeVoting)
	if err == nil {
		err = m.checkVoteRules(event, input.VoteCount)
	}
	if err != nil {
		m.metrics.IncReservation(string(enums.PurchaseTypeVote), outcomeFor(err))
		return nil, err
	}
	candidate, err := m.events.FindCandidate(ctx, event.ID, input.CategoryID, input.CandidateID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m.metrics.IncReservation(string(enums.PurchaseTypeVote), "rejected")
		return nil, fail(ErrCandidateNotFound, "")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load candidate")
	}

	count := input.VoteCount
	categoryID := candidate.CategoryID
	candidateID := candidate.ID
	purchase := &models.Purchase{
		EventID:       event.ID,
		UserID:        input.UserID,
		Type:          enums.PurchaseTypeVote,
		Source:        sourceOrDefault(input.Source),
		Amount:        event.CostPerVote.Mul(decimal.NewFromInt(int64(count))),
		Currency:      m.currencyFor(event),
		CategoryID:    &categoryID,
		CandidateID:   &candidateID,
		VoteCount:     &count,
		CustomerEmail: strings.TrimSpace(input.Customer.Email),
		CustomerName:  input.Customer.namePtr(),
		CustomerPhone: input.Customer.phonePtr(),
	}
	description := fmt.Sprintf("%d votes for %s - %s", count, candidate.Name, event.Title)
	return m.place(ctx, purchase, description)
}

func (m *manager) GetByReference(ctx context.Context, reference string) (*models.Purchase, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	purchase, err := m.repo.FindByReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(ErrPurchaseNotFound, "")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	return purchase, nil
}

func (m *manager) loadPurchasableEvent(ctx context.Context, eventID uuid.UUID, kind enums.EventType) (*models.Event, error) {
	event, err := m.events.FindByID(ctx, eventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(ErrEventNotFound, "")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	if !event.Status.Purchasable() {
		return nil, fail(ErrEventNotPurchasable, fmt.Sprintf("event is %s", strings.ToLower(string(event.Status))))
	}
	if event.Type != kind {
		return nil, fail(ErrEventNotPurchasable, fmt.Sprintf("event does not accept %s purchases", strings.ToLower(string(kind))))
	}
	return event, nil
}

func (m *manager) checkVoteRules(event *models.Event, count int) error {
	if !event.VotingConfigured() {
		return fail(ErrVotingNotConfigured, "")
	}
	if !event.VotingOpenAt(m.now().UTC()) {
		return fail(ErrVoteWindowClosed, "")
	}
	if count < 1 {
		return fail(ErrVoteCountOutOfRange, "vote count must be at least 1")
	}
	if event.MinVotesPerPurchase != nil && count < *event.MinVotesPerPurchase {
		return fail(ErrVoteCountOutOfRange, fmt.Sprintf("minimum %d votes per purchase", *event.MinVotesPerPurchase))
	}
	if event.MaxVotesPerPurchase != nil && count > *event.MaxVotesPerPurchase {
		return fail(ErrVoteCountOutOfRange, fmt.Sprintf("maximum %d votes per purchase", *event.MaxVotesPerPurchase))
	}
	return nil
}

// place holds inventory and writes the PENDING purchase in one transaction, then opens the
// gateway checkout with no lock held. A failed checkout is rolled back through closePending.
func (m *manager) place(ctx context.Context, purchase *models.Purchase, description string) (*ReservationResult, error) {
	kind := string(purchase.Type)
	gw, err := m.gateways.Active(ctx)
	if err != nil {
		m.metrics.IncReservation(kind, "gateway_unavailable")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err), "no payment gateway available")
	}

	now := m.now().UTC()
	purchase.Status = enums.PurchaseStatusPending
	purchase.PaymentReference = NewReference(now)
	purchase.PaymentGateway = gw.Name()
	purchase.ExpiresAt = now.Add(m.hold)

	err = m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if purchase.Type == enums.PurchaseTypeTicket {
			if err := m.ledger.Reserve(ctx, tx, *purchase.TicketTypeID, purchase.Quantity()); err != nil {
				return err
			}
		}
		return m.repo.WithTx(tx).Create(ctx, purchase)
	})
	if err != nil {
		switch {
		case errors.Is(err, inventory.ErrInsufficientInventory):
			m.metrics.IncReservation(kind, "sold_out")
			return nil, fail(ErrInsufficientInventory, "not enough tickets available")
		case errors.Is(err, inventory.ErrItemNotFound):
			m.metrics.IncReservation(kind, "rejected")
			return nil, fail(ErrTicketTypeNotFound, "")
		case pkgerrors.As(err) != nil:
			m.metrics.IncReservation(kind, "error")
			return nil, err
		default:
			m.metrics.IncReservation(kind, "error")
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase")
		}
	}

	if m.logg != nil {
		ctx = m.logg.WithFields(ctx, map[string]any{
			"reference": purchase.PaymentReference,
			"gateway":   purchase.PaymentGateway,
			"type":      purchase.Type,
		})
	}

	initResult, err := gw.InitializePayment(ctx, gateways.InitializeRequest{
		Reference:     purchase.PaymentReference,
		Email:         purchase.CustomerEmail,
		CustomerName:  deref(purchase.CustomerName),
		CustomerPhone: deref(purchase.CustomerPhone),
		Amount:        purchase.Amount,
		Currency:      purchase.Currency,
		Description:   description,
		CallbackURL:   m.callbackURL,
		Metadata: map[string]string{
			"purchaseId": purchase.ID.String(),
			"eventId":    purchase.EventID.String(),
			"type":       string(purchase.Type),
			"reference":  purchase.PaymentReference,
		},
	})
	if err != nil {
		m.rollback(ctx, purchase)
		m.metrics.IncReservation(kind, "gateway_unavailable")
		if m.logg != nil {
			m.logg.Error(ctx, "payment initialization failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err), "payment initialization failed")
	}

	if initResult.GatewayReference != "" {
		// Stripe verification looks the purchase up by session id, so a purchase
		// without one can only settle by webhook.
		if err := m.storeGatewayReference(ctx, purchase, initResult.GatewayReference); err != nil {
			m.rollback(ctx, purchase)
			m.metrics.IncReservation(kind, "error")
			if m.logg != nil {
				m.logg.Error(ctx, "store gateway reference", err)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err), "payment initialization failed")
		}
	}

	m.metrics.IncReservation(kind, "reserved")
	if m.logg != nil {
		m.logg.Info(ctx, "purchase reserved")
	}
	return &ReservationResult{
		Purchase:   purchase,
		PaymentURL: initResult.CheckoutURL,
		Reference:  purchase.PaymentReference,
		ExpiresAt:  purchase.ExpiresAt,
	}, nil
}

const gatewayReferenceAttempts = 3

func (m *manager) storeGatewayReference(ctx context.Context, purchase *models.Purchase, ref string) error {
	var err error
	for attempt := 1; attempt <= gatewayReferenceAttempts; attempt++ {
		if err = m.repo.SetGatewayReference(ctx, purchase.ID, ref); err == nil {
			purchase.GatewayReference = &ref
			return nil
		}
		if attempt == gatewayReferenceAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}

// rollback fails the purchase and returns its hold. A failed rollback is left to the reaper.
func (m *manager) rollback(ctx context.Context, purchase *models.Purchase) {
	var closed bool
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		closed, err = m.closePending(ctx, tx, purchase, enums.PurchaseStatusFailed, reasonGatewayInit, m.now().UTC())
		return err
	})
	if err != nil {
		if m.logg != nil {
			m.logg.Error(ctx, "rollback of failed checkout deferred to expiry", err)
		}
		return
	}
	if closed && purchase.Type == enums.PurchaseTypeTicket {
		m.metrics.IncHoldReleased(reasonGatewayInit)
	}
}

func (m *manager) currencyFor(event *models.Event) string {
	if c := strings.ToUpper(strings.TrimSpace(event.Currency)); c != "" {
		return c
	}
	return m.currency
}

func validateCustomer(c Customer) error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is invalid")
	}
	return nil
}

func sourceOrDefault(source enums.PurchaseSource) enums.PurchaseSource {
	if source.IsValid() {
		return source
	}
	return enums.PurchaseSourceWeb
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrEventNotFound):
		return "event_not_found"
	case errors.Is(err, ErrEventNotPurchasable):
		return "not_purchasable"
	case errors.Is(err, ErrVotingNotConfigured), errors.Is(err, ErrVoteWindowClosed), errors.Is(err, ErrVoteCountOutOfRange):
		return "rejected"
	default:
		return "error"
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
