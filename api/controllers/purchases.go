package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/easevote-backend/api/middleware"
	"github.com/angelmondragon/easevote-backend/api/responses"
	"github.com/angelmondragon/easevote-backend/api/validators"
	"github.com/angelmondragon/easevote-backend/internal/purchases"
	"github.com/angelmondragon/easevote-backend/internal/votes"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

type ticketPurchaseRequest struct {
	EventID      string `json:"eventId" validate:"required,uuid"`
	TicketTypeID string `json:"ticketTypeId" validate:"required,uuid"`
	Quantity     int    `json:"quantity" validate:"required,min=1,max=50"`
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"max=120"`
	Phone        string `json:"phone" validate:"omitempty,phone"`
}

func (r *ticketPurchaseRequest) Normalize() {
	r.Email = validators.NormalizeEmail(r.Email)
	r.Name = validators.SanitizeString(r.Name, 120)
}

func (r ticketPurchaseRequest) toInput(userID *uuid.UUID) purchases.TicketReservationInput {
	return purchases.TicketReservationInput{
		EventID:      uuid.MustParse(r.EventID),
		TicketTypeID: uuid.MustParse(r.TicketTypeID),
		Quantity:     r.Quantity,
		Customer:     customerFrom(r.Email, r.Name, r.Phone),
		UserID:       userID,
		Source:       enums.PurchaseSourceWeb,
	}
}

type votePurchaseRequest struct {
	EventID     string `json:"eventId" validate:"required,uuid"`
	CategoryID  string `json:"categoryId" validate:"required,uuid"`
	CandidateID string `json:"candidateId" validate:"required,uuid"`
	VoteCount   int    `json:"voteCount" validate:"required,min=1"`
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"max=120"`
	Phone       string `json:"phone" validate:"omitempty,phone"`
}

func (r *votePurchaseRequest) Normalize() {
	r.Email = validators.NormalizeEmail(r.Email)
	r.Name = validators.SanitizeString(r.Name, 120)
}

func (r votePurchaseRequest) toInput(userID *uuid.UUID) purchases.VoteReservationInput {
	return purchases.VoteReservationInput{
		EventID:     uuid.MustParse(r.EventID),
		CategoryID:  uuid.MustParse(r.CategoryID),
		CandidateID: uuid.MustParse(r.CandidateID),
		VoteCount:   r.VoteCount,
		Customer:    customerFrom(r.Email, r.Name, r.Phone),
		UserID:      userID,
		Source:      enums.PurchaseSourceWeb,
	}
}

// nomineeVoteRequest is a vote purchase addressed by nominee code, as printed
// on posters and read out on USSD.
type nomineeVoteRequest struct {
	VoteCount int    `json:"voteCount" validate:"required,min=1"`
	Email     string `json:"email" validate:"required,email"`
	Name      string `json:"name" validate:"max=120"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
}

func (r *nomineeVoteRequest) Normalize() {
	r.Email = validators.NormalizeEmail(r.Email)
	r.Name = validators.SanitizeString(r.Name, 120)
}

func customerFrom(email, name, phone string) purchases.Customer {
	return purchases.Customer{
		Email: validators.NormalizeEmail(email),
		Name:  validators.SanitizeString(name, 120),
		Phone: validators.SanitizePhone(phone, 32),
	}
}

type reservationResponse struct {
	Reference  string    `json:"reference"`
	PaymentURL string    `json:"paymentUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
}

func newReservationResponse(res *purchases.ReservationResult) reservationResponse {
	out := reservationResponse{
		Reference:  res.Reference,
		PaymentURL: res.PaymentURL,
		ExpiresAt:  res.ExpiresAt,
	}
	if res.Purchase != nil {
		out.Amount = res.Purchase.Amount.StringFixed(2)
		out.Currency = res.Purchase.Currency
	}
	return out
}

type purchaseResponse struct {
	Reference      string               `json:"reference"`
	Type           enums.PurchaseType   `json:"type"`
	Status         enums.PurchaseStatus `json:"status"`
	EventID        uuid.UUID            `json:"eventId"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       string               `json:"currency"`
	PaymentGateway enums.GatewayName    `json:"paymentGateway"`
	TicketTypeID   *uuid.UUID           `json:"ticketTypeId,omitempty"`
	TicketQuantity *int                 `json:"ticketQuantity,omitempty"`
	TicketNumbers  []string             `json:"ticketNumbers,omitempty"`
	CategoryID     *uuid.UUID           `json:"categoryId,omitempty"`
	CandidateID    *uuid.UUID           `json:"candidateId,omitempty"`
	VoteCount      *int                 `json:"voteCount,omitempty"`
	CustomerEmail  string               `json:"customerEmail"`
	ExpiresAt      time.Time            `json:"expiresAt"`
	PaidAt         *time.Time           `json:"paidAt,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
}

func newPurchaseResponse(p *models.Purchase) purchaseResponse {
	return purchaseResponse{
		Reference:      p.PaymentReference,
		Type:           p.Type,
		Status:         p.Status,
		EventID:        p.EventID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		PaymentGateway: p.PaymentGateway,
		TicketTypeID:   p.TicketTypeID,
		TicketQuantity: p.TicketQuantity,
		TicketNumbers:  p.TicketNumbers,
		CategoryID:     p.CategoryID,
		CandidateID:    p.CandidateID,
		VoteCount:      p.VoteCount,
		CustomerEmail:  p.CustomerEmail,
		ExpiresAt:      p.ExpiresAt,
		PaidAt:         p.PaidAt,
		CreatedAt:      p.CreatedAt,
	}
}

// PurchaseTickets places a ticket hold and returns the gateway checkout URL.
func PurchaseTickets(svc purchases.ReservationManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		var req ticketPurchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.ReserveTickets(r.Context(), req.toInput(optionalUserID(middleware.UserIDFromContext(r.Context()))))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReservationResponse(res))
	}
}

// PurchaseVotes places a vote purchase and returns the gateway checkout URL.
func PurchaseVotes(svc purchases.ReservationManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		var req votePurchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.ReserveVotes(r.Context(), req.toInput(optionalUserID(middleware.UserIDFromContext(r.Context()))))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReservationResponse(res))
	}
}

// VoteForNominee resolves a nominee code within an event and places a vote purchase for it.
func VoteForNominee(nominees votes.Service, svc purchases.ReservationManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || nominees == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		eventID, err := uuidParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code := strings.TrimSpace(chi.URLParam(r, "code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "nominee code is required"))
			return
		}

		var req nomineeVoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		nominee, err := nominees.Nominee(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if nominee.EventID != eventID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "nominee not found"))
			return
		}

		res, err := svc.ReserveVotes(r.Context(), purchases.VoteReservationInput{
			EventID:     nominee.EventID,
			CategoryID:  nominee.CategoryID,
			CandidateID: nominee.CandidateID,
			VoteCount:   req.VoteCount,
			Customer:    customerFrom(req.Email, req.Name, req.Phone),
			UserID:      optionalUserID(middleware.UserIDFromContext(r.Context())),
			Source:      enums.PurchaseSourceWeb,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReservationResponse(res))
	}
}

// PurchaseDetail returns a purchase by its payment reference.
func PurchaseDetail(svc purchases.ReservationManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		reference := referenceParam(r)
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference is required"))
			return
		}

		purchase, err := svc.GetByReference(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPurchaseResponse(purchase))
	}
}

// VerifyPurchase polls the purchase's gateway and settles the verdict.
func VerifyPurchase(svc purchases.SettlementCoordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		reference := referenceParam(r)
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference is required"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithReference(ctx, reference)
		}
		res, err := svc.Verify(ctx, reference)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"message":  res.Message,
			"purchase": newPurchaseResponse(res.Purchase),
		})
	}
}
