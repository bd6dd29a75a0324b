package fulfillment

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/easevote-backend/internal/inventory"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/outbox"
	"github.com/angelmondragon/easevote-backend/pkg/outbox/payloads"
)

// Engine materializes what a paid purchase bought.
type Engine interface {
	// Fulfill runs inside the settlement transaction and returns the ticket numbers issued, if any.
	Fulfill(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) ([]string, error)
}

type engine struct {
	ledger inventory.Ledger
	outbox outbox.Emitter
}

// NewEngine builds the fulfillment engine.
func NewEngine(ledger inventory.Ledger, emitter outbox.Emitter) (Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &engine{ledger: ledger, outbox: emitter}, nil
}

func (e *engine) Fulfill(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) ([]string, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for fulfillment")
	}
	if purchase == nil || purchase.Status != enums.PurchaseStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paid purchases can be fulfilled")
	}

	switch purchase.Type {
	case enums.PurchaseTypeTicket:
		return e.issueTickets(ctx, tx, purchase)
	case enums.PurchaseTypeVote:
		return nil, e.recordVotes(ctx, tx, purchase)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown purchase type %q", purchase.Type))
	}
}

func (e *engine) issueTickets(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) ([]string, error) {
	qty := purchase.Quantity()
	if purchase.TicketTypeID == nil || qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket purchase missing ticket type or quantity")
	}

	numbers := TicketNumbers(purchase.PaymentReference, qty)
	rows := make([]models.Ticket, 0, qty)
	for _, number := range numbers {
		qr, err := QRData(purchase.EventID, purchase.ID, number, purchase.CustomerEmail)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ticket qr data")
		}
		rows = append(rows, models.Ticket{
			EventID:       purchase.EventID,
			PurchaseID:    purchase.ID,
			TicketTypeID:  *purchase.TicketTypeID,
			TicketNumber:  number,
			QRData:        qr,
			CustomerEmail: purchase.CustomerEmail,
			CustomerName:  purchase.CustomerName,
			CustomerPhone: purchase.CustomerPhone,
		})
	}

	// ticket numbers are deterministic, so a replay inserts nothing new.
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ticket_number"}}, DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert tickets")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventTicketsIssued,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchase.ID,
		Data: payloads.TicketsIssuedEvent{
			PurchaseID:       purchase.ID,
			PaymentReference: purchase.PaymentReference,
			EventID:          purchase.EventID,
			TicketTypeID:     *purchase.TicketTypeID,
			TicketNumbers:    numbers,
			CustomerEmail:    purchase.CustomerEmail,
			CustomerName:     purchase.CustomerName,
			CustomerPhone:    purchase.CustomerPhone,
		},
		Version: outbox.EnvelopeVersion,
	}
	if err := e.outbox.EmitOnce(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit tickets issued event")
	}
	return numbers, nil
}

func (e *engine) recordVotes(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) error {
	count := purchase.Quantity()
	if purchase.CandidateID == nil || purchase.CategoryID == nil || count <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "vote purchase missing candidate or count")
	}
	if err := e.ledger.AddVotes(ctx, tx, *purchase.CandidateID, count); err != nil {
		return err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventVotesRecorded,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchase.ID,
		Data: payloads.VotesRecordedEvent{
			PurchaseID:       purchase.ID,
			PaymentReference: purchase.PaymentReference,
			EventID:          purchase.EventID,
			CategoryID:       *purchase.CategoryID,
			CandidateID:      *purchase.CandidateID,
			VoteCount:        count,
			CustomerEmail:    purchase.CustomerEmail,
			CustomerPhone:    purchase.CustomerPhone,
		},
		Version: outbox.EnvelopeVersion,
	}
	if err := e.outbox.EmitOnce(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit votes recorded event")
	}
	return nil
}
