package purchases

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

// Customer identifies the payer.
type Customer struct {
	Email string
	Name  string
	Phone string
}

func (c Customer) namePtr() *string {
	return optional(c.Name)
}

func (c Customer) phonePtr() *string {
	return optional(c.Phone)
}

// TicketReservationInput describes a ticket purchase request.
type TicketReservationInput struct {
	EventID      uuid.UUID
	TicketTypeID uuid.UUID
	Quantity     int
	Customer     Customer
	UserID       *uuid.UUID
	Source       enums.PurchaseSource
}

// VoteReservationInput describes a vote purchase request.
type VoteReservationInput struct {
	EventID     uuid.UUID
	CategoryID  uuid.UUID
	CandidateID uuid.UUID
	VoteCount   int
	Customer    Customer
	UserID      *uuid.UUID
	Source      enums.PurchaseSource
}

// ReservationResult is returned to the payer after a hold is placed.
type ReservationResult struct {
	Purchase   *models.Purchase
	PaymentURL string
	Reference  string
	ExpiresAt  time.Time
}

// SettleInput is a gateway verdict for a purchase reference.
type SettleInput struct {
	Reference string
	Verdict   enums.Verdict
	Gateway   enums.GatewayName
	// Amount is what the gateway reports as paid, when it reports one.
	Amount   *decimal.Decimal
	Currency string
	Source   string
}

// SettleResult reports what the settlement did.
type SettleResult struct {
	Purchase *models.Purchase
	// Transitioned is false when the purchase was already terminal or the verdict was not final.
	Transitioned bool
	// FulfillmentPending is set when payment committed but fulfillment must be retried.
	FulfillmentPending bool
}

// VerifyResult is returned by Verify.
type VerifyResult struct {
	Purchase *models.Purchase
	Message  string
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
