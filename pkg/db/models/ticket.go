package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ticket is the fulfillment artifact for one unit of a ticket purchase.
type Ticket struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	EventID       uuid.UUID  `gorm:"column:event_id;type:uuid;not null;index"`
	PurchaseID    uuid.UUID  `gorm:"column:purchase_id;type:uuid;not null;index"`
	TicketTypeID  uuid.UUID  `gorm:"column:ticket_type_id;type:uuid;not null"`
	TicketNumber  string     `gorm:"column:ticket_number;uniqueIndex;not null"`
	QRData        string     `gorm:"column:qr_data;type:text;not null"`
	CustomerEmail string     `gorm:"column:customer_email;not null"`
	CustomerName  *string    `gorm:"column:customer_name"`
	CustomerPhone *string    `gorm:"column:customer_phone"`
	IsUsed        bool       `gorm:"column:is_used;not null;default:false"`
	UsedAt        *time.Time `gorm:"column:used_at"`
	ScannedBy     *uuid.UUID `gorm:"column:scanned_by;type:uuid"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (t *Ticket) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
