package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

// PurchaseSettledEvent is emitted when a purchase leaves PENDING.
type PurchaseSettledEvent struct {
	PurchaseID       uuid.UUID            `json:"purchase_id"`
	PaymentReference string               `json:"payment_reference"`
	EventID          uuid.UUID            `json:"event_id"`
	Type             enums.PurchaseType   `json:"type"`
	Status           enums.PurchaseStatus `json:"status"`
	Gateway          enums.GatewayName    `json:"gateway"`
	Amount           string               `json:"amount"`
	Currency         string               `json:"currency"`
	Quantity         int                  `json:"quantity"`
	CustomerEmail    string               `json:"customer_email"`
	Reason           string               `json:"reason,omitempty"`
	OccurredAt       time.Time            `json:"occurred_at"`
}

// TicketsIssuedEvent lists the ticket numbers minted for a paid purchase.
type TicketsIssuedEvent struct {
	PurchaseID       uuid.UUID `json:"purchase_id"`
	PaymentReference string    `json:"payment_reference"`
	EventID          uuid.UUID `json:"event_id"`
	TicketTypeID     uuid.UUID `json:"ticket_type_id"`
	TicketNumbers    []string  `json:"ticket_numbers"`
	CustomerEmail    string    `json:"customer_email"`
	CustomerName     *string   `json:"customer_name,omitempty"`
	CustomerPhone    *string   `json:"customer_phone,omitempty"`
}

// VotesRecordedEvent reports a tally increment for a candidate.
type VotesRecordedEvent struct {
	PurchaseID       uuid.UUID `json:"purchase_id"`
	PaymentReference string    `json:"payment_reference"`
	EventID          uuid.UUID `json:"event_id"`
	CategoryID       uuid.UUID `json:"category_id"`
	CandidateID      uuid.UUID `json:"candidate_id"`
	VoteCount        int       `json:"vote_count"`
	CustomerEmail    string    `json:"customer_email"`
	CustomerPhone    *string   `json:"customer_phone,omitempty"`
}
