package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

// Purchase is a single reservation attempt driven through a payment gateway.
type Purchase struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	EventID          uuid.UUID            `gorm:"column:event_id;type:uuid;not null;index"`
	UserID           *uuid.UUID           `gorm:"column:user_id;type:uuid"`
	Type             enums.PurchaseType   `gorm:"column:type;type:text;not null"`
	Status           enums.PurchaseStatus `gorm:"column:status;type:text;not null;default:'PENDING';index:idx_purchases_pending_expiry,priority:1,where:status = 'PENDING'"`
	Source           enums.PurchaseSource `gorm:"column:source;type:text;not null;default:'web'"`
	PaymentReference string               `gorm:"column:payment_reference;uniqueIndex;not null"`
	PaymentGateway   enums.GatewayName    `gorm:"column:payment_gateway;type:text;not null"`
	GatewayReference *string              `gorm:"column:gateway_reference"`
	Amount           decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         string               `gorm:"column:currency;type:text;not null"`

	TicketTypeID   *uuid.UUID `gorm:"column:ticket_type_id;type:uuid"`
	TicketQuantity *int       `gorm:"column:ticket_quantity"`
	TicketNumbers  []string   `gorm:"column:ticket_numbers;type:jsonb;serializer:json"`

	CategoryID  *uuid.UUID `gorm:"column:category_id;type:uuid"`
	CandidateID *uuid.UUID `gorm:"column:candidate_id;type:uuid"`
	VoteCount   *int       `gorm:"column:vote_count"`

	CustomerEmail string  `gorm:"column:customer_email;not null"`
	CustomerName  *string `gorm:"column:customer_name"`
	CustomerPhone *string `gorm:"column:customer_phone"`

	ExpiresAt   time.Time  `gorm:"column:expires_at;not null;index:idx_purchases_pending_expiry,priority:2"`
	PaidAt      *time.Time `gorm:"column:paid_at"`
	FulfilledAt *time.Time `gorm:"column:fulfilled_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Purchase) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Quantity returns the number of units the purchase buys regardless of kind.
func (p *Purchase) Quantity() int {
	switch p.Type {
	case enums.PurchaseTypeTicket:
		if p.TicketQuantity != nil {
			return *p.TicketQuantity
		}
	case enums.PurchaseTypeVote:
		if p.VoteCount != nil {
			return *p.VoteCount
		}
	}
	return 0
}

// VerificationReference is the identifier the gateway knows this purchase by.
func (p *Purchase) VerificationReference() string {
	if p.GatewayReference != nil && *p.GatewayReference != "" {
		return *p.GatewayReference
	}
	return p.PaymentReference
}
