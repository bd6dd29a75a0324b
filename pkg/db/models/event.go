package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

// Event is the aggregate owning ticket types and vote categories.
type Event struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Title               string            `gorm:"column:title;not null"`
	EventCode           string            `gorm:"column:event_code;uniqueIndex;not null"`
	Type                enums.EventType   `gorm:"column:type;type:text;not null"`
	Status              enums.EventStatus `gorm:"column:status;type:text;not null;default:'DRAFT'"`
	IsDeleted           bool              `gorm:"column:is_deleted;not null;default:false"`
	StartDate           *time.Time        `gorm:"column:start_date"`
	EndDate             *time.Time        `gorm:"column:end_date"`
	VotingStartDate     *time.Time        `gorm:"column:voting_start_date"`
	VotingEndDate       *time.Time        `gorm:"column:voting_end_date"`
	CostPerVote         *decimal.Decimal  `gorm:"column:cost_per_vote;type:numeric(12,2)"`
	MinVotesPerPurchase *int              `gorm:"column:min_votes_per_purchase"`
	MaxVotesPerPurchase *int              `gorm:"column:max_votes_per_purchase"`
	Currency            string            `gorm:"column:currency;type:text;not null;default:'GHS'"`
	TicketTypes         []TicketType      `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
	Categories          []Category        `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *Event) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// VotingConfigured reports whether the event charges a positive price per vote.
func (e *Event) VotingConfigured() bool {
	return e.CostPerVote != nil && e.CostPerVote.IsPositive()
}

// VotingOpenAt reports whether t lies inside the optional voting window.
func (e *Event) VotingOpenAt(t time.Time) bool {
	if e.VotingStartDate != nil && t.Before(*e.VotingStartDate) {
		return false
	}
	if e.VotingEndDate != nil && t.After(*e.VotingEndDate) {
		return false
	}
	return true
}

// TicketType carries the capacity counters of one ticket tier.
type TicketType struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	EventID   uuid.UUID       `gorm:"column:event_id;type:uuid;not null;index"`
	Name      string          `gorm:"column:name;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity  int             `gorm:"column:quantity;not null;check:chk_ticket_types_capacity,reserved + sold <= quantity"`
	Reserved  int             `gorm:"column:reserved;not null;default:0;check:chk_ticket_types_reserved,reserved >= 0"`
	Sold      int             `gorm:"column:sold;not null;default:0;check:chk_ticket_types_sold,sold >= 0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *TicketType) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Available returns the units neither held nor sold.
func (t TicketType) Available() int {
	available := t.Quantity - t.Reserved - t.Sold
	if available < 0 {
		return 0
	}
	return available
}

// Category groups candidates of a voting event.
type Category struct {
	ID         uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	EventID    uuid.UUID   `gorm:"column:event_id;type:uuid;not null;index"`
	Name       string      `gorm:"column:name;not null"`
	Candidates []Candidate `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time   `gorm:"column:created_at;autoCreateTime"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Candidate is a nominee whose tally is only ever incremented by fulfillment.
type Candidate struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CategoryID uuid.UUID `gorm:"column:category_id;type:uuid;not null;index"`
	EventID    uuid.UUID `gorm:"column:event_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	Code       string    `gorm:"column:code;uniqueIndex;not null"`
	Votes      int64     `gorm:"column:votes;not null;default:0;check:chk_candidates_votes,votes >= 0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Candidate) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
