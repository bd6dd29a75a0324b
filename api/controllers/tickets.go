package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/easevote-backend/api/middleware"
	"github.com/angelmondragon/easevote-backend/api/responses"
	"github.com/angelmondragon/easevote-backend/api/validators"
	"github.com/angelmondragon/easevote-backend/internal/tickets"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
	"github.com/angelmondragon/easevote-backend/pkg/types"
)

type ticketResponse struct {
	TicketNumber  string     `json:"ticketNumber"`
	EventID       uuid.UUID  `json:"eventId"`
	TicketTypeID  uuid.UUID  `json:"ticketTypeId"`
	QRData        string     `json:"qrData"`
	CustomerEmail string     `json:"customerEmail"`
	CustomerName  *string    `json:"customerName,omitempty"`
	IsUsed        bool       `json:"isUsed"`
	UsedAt        *time.Time `json:"usedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func newTicketResponse(t models.Ticket) ticketResponse {
	return ticketResponse{
		TicketNumber:  t.TicketNumber,
		EventID:       t.EventID,
		TicketTypeID:  t.TicketTypeID,
		QRData:        t.QRData,
		CustomerEmail: t.CustomerEmail,
		CustomerName:  t.CustomerName,
		IsUsed:        t.IsUsed,
		UsedAt:        t.UsedAt,
		CreatedAt:     t.CreatedAt,
	}
}

func newTicketResponses(items []models.Ticket) []ticketResponse {
	out := make([]ticketResponse, 0, len(items))
	for _, item := range items {
		out = append(out, newTicketResponse(item))
	}
	return out
}

type scanRequest struct {
	TicketNumber string `json:"ticketNumber" validate:"required,max=64"`
}

// TicketsByReference lists the tickets issued for a purchase.
func TicketsByReference(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		reference := referenceParam(r)
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference is required"))
			return
		}

		items, err := svc.ListByReference(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTicketResponses(items))
	}
}

// ScanTicket admits a ticket at the door. A ticket scans successfully once.
func ScanTicket(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		scannerID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var req scanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ticket, err := svc.Scan(r.Context(), req.TicketNumber, scannerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTicketResponse(*ticket))
	}
}

// EventTickets pages through an event's issued tickets.
func EventTickets(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		eventID, err := uuidParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		usedOnly, err := validators.ParseQueryBool(r, "usedOnly", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := tickets.ListParams{
			EventID:  eventID,
			Limit:    limit,
			Cursor:   validators.ParseQueryString(r, "cursor", 512),
			UsedOnly: usedOnly,
		}

		res, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.CursorPage[ticketResponse]{
			Items:      newTicketResponses(res.Items),
			NextCursor: res.Cursor,
		})
	}
}

// EventTicketStats returns per ticket type inventory and admission counts.
func EventTicketStats(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		eventID, err := uuidParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.Stats(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
