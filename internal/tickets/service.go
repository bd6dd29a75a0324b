package tickets

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/internal/events"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/pagination"
)

// Service defines ticket lookup, scanning and event stats.
type Service interface {
	Scan(ctx context.Context, ticketNumber string, scannerID uuid.UUID) (*models.Ticket, error)
	ListByReference(ctx context.Context, reference string) ([]models.Ticket, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Stats(ctx context.Context, eventID uuid.UUID) (*EventStats, error)
}

type service struct {
	repo   Repository
	events events.Repository
	now    func() time.Time
}

// ListParams configures pagination for an event's tickets.
type ListParams struct {
	EventID  uuid.UUID
	Limit    int
	Cursor   string
	UsedOnly bool
}

// ListResult wraps returned tickets and the cursor for the next page.
type ListResult struct {
	Items  []models.Ticket `json:"items"`
	Cursor string          `json:"cursor"`
}

// TicketTypeStats summarises one ticket tier.
type TicketTypeStats struct {
	TicketTypeID uuid.UUID       `json:"ticketTypeId"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Reserved     int             `json:"reserved"`
	Sold         int             `json:"sold"`
	Available    int             `json:"available"`
	Issued       int64           `json:"issued"`
	Scanned      int64           `json:"scanned"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// EventStats aggregates ticket tiers for one event.
type EventStats struct {
	EventID      uuid.UUID         `json:"eventId"`
	TicketTypes  []TicketTypeStats `json:"ticketTypes"`
	TotalSold    int               `json:"totalSold"`
	TotalIssued  int64             `json:"totalIssued"`
	TotalScanned int64             `json:"totalScanned"`
	TotalRevenue decimal.Decimal   `json:"totalRevenue"`
}

// NewService wires tickets dependencies.
func NewService(repo Repository, eventsRepo events.Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tickets repository required")
	}
	if eventsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events repository required")
	}
	return &service{repo: repo, events: eventsRepo, now: time.Now}, nil
}

// Scan admits a ticket once. Re-scanning reports the time it was first used.
func (s *service) Scan(ctx context.Context, ticketNumber string, scannerID uuid.UUID) (*models.Ticket, error) {
	ticketNumber = strings.ToUpper(strings.TrimSpace(ticketNumber))
	if ticketNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket number required")
	}
	var scanner *uuid.UUID
	if scannerID != uuid.Nil {
		scanner = &scannerID
	}

	result, err := s.repo.MarkUsed(ctx, ticketNumber, scanner, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan ticket")
	}
	if !result.Found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}

	ticket, err := s.repo.FindByNumber(ctx, ticketNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	if !result.Updated {
		details := map[string]any{"ticketNumber": ticket.TicketNumber}
		if ticket.UsedAt != nil {
			details["usedAt"] = ticket.UsedAt.UTC().Format(time.RFC3339)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "ticket already used").WithDetails(details)
	}
	return ticket, nil
}

func (s *service) ListByReference(ctx context.Context, reference string) ([]models.Ticket, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	tickets, err := s.repo.ListByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tickets")
	}
	return tickets, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}

	query := listTicketsParams{
		EventID:  params.EventID,
		Limit:    params.Limit,
		UsedOnly: params.UsedOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListByEvent(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tickets")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Stats(ctx context.Context, eventID uuid.UUID) (*EventStats, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}

	types, err := s.events.ListTicketTypes(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ticket types")
	}
	counts, err := s.repo.CountsByTicketType(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count tickets")
	}

	stats := &EventStats{
		EventID:      eventID,
		TicketTypes:  make([]TicketTypeStats, 0, len(types)),
		TotalRevenue: decimal.Zero,
	}
	for _, tt := range types {
		count := counts[tt.ID]
		revenue := tt.Price.Mul(decimal.NewFromInt(int64(tt.Sold)))
		stats.TicketTypes = append(stats.TicketTypes, TicketTypeStats{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Price:        tt.Price,
			Quantity:     tt.Quantity,
			Reserved:     tt.Reserved,
			Sold:         tt.Sold,
			Available:    tt.Available(),
			Issued:       count.Issued,
			Scanned:      count.Scanned,
			Revenue:      revenue,
		})
		stats.TotalSold += tt.Sold
		stats.TotalIssued += count.Issued
		stats.TotalScanned += count.Scanned
		stats.TotalRevenue = stats.TotalRevenue.Add(revenue)
	}
	return stats, nil
}
