package ussd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/internal/purchases"
	"github.com/angelmondragon/easevote-backend/internal/votes"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

// Request is the aggregator's hop payload. MsgType is true on the first hop of a dialogue.
type Request struct {
	UserID    string `json:"USERID"`
	MSISDN    string `json:"MSISDN" validate:"required"`
	UserData  string `json:"USERDATA"`
	MsgType   bool   `json:"MSGTYPE"`
	Network   string `json:"NETWORK,omitempty"`
	SessionID string `json:"SESSIONID,omitempty"`
}

// Response is rendered on the handset. MsgType false ends the dialogue.
type Response struct {
	UserID   string `json:"USERID"`
	MSISDN   string `json:"MSISDN"`
	UserData string `json:"USERDATA"`
	Msg      string `json:"MSG"`
	MsgType  bool   `json:"MSGTYPE"`
}

// Service drives the USSD purchase dialogue.
type Service interface {
	Handle(ctx context.Context, req Request) (*Response, error)
}

type catalog interface {
	FindByCode(ctx context.Context, code string, eventType enums.EventType) (*models.Event, error)
	ListTicketTypes(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error)
}

type nominees interface {
	Nominee(ctx context.Context, code string) (*votes.Nominee, error)
}

type reserver interface {
	ReserveTickets(ctx context.Context, input purchases.TicketReservationInput) (*purchases.ReservationResult, error)
	ReserveVotes(ctx context.Context, input purchases.VoteReservationInput) (*purchases.ReservationResult, error)
}

// ServiceParams wires the USSD service.
type ServiceParams struct {
	Sessions     SessionStore
	Catalog      catalog
	Nominees     nominees
	Reservations reserver
	DefaultEmail string
	Logger       *logger.Logger
}

type service struct {
	sessions     SessionStore
	catalog      catalog
	nominees     nominees
	reservations reserver
	defaultEmail string
	logg         *logger.Logger
}

// NewService builds the USSD dialogue service.
func NewService(params ServiceParams) (Service, error) {
	if params.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("events catalog required")
	}
	if params.Nominees == nil {
		return nil, fmt.Errorf("votes service required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	email := strings.TrimSpace(params.DefaultEmail)
	if email == "" {
		email = "ussd@easevote.app"
	}
	return &service{
		sessions:     params.Sessions,
		catalog:      params.Catalog,
		nominees:     params.Nominees,
		reservations: params.Reservations,
		defaultEmail: email,
		logg:         params.Logger,
	}, nil
}

func (s *service) Handle(ctx context.Context, req Request) (*Response, error) {
	req.MSISDN = strings.TrimSpace(req.MSISDN)
	if req.MSISDN == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "MSISDN is required")
	}

	if req.MsgType {
		return s.welcome(ctx, req)
	}
	session, err := s.sessions.Load(ctx, req.MSISDN)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ussd session")
	}
	if session == nil {
		return s.welcome(ctx, req)
	}

	switch session.Step {
	case stepWelcome:
		return s.chooseFlow(ctx, req, session)
	case stepVoteCode:
		return s.enterNomineeCode(ctx, req, session)
	case stepVoteCount:
		return s.enterVoteCount(ctx, req, session)
	case stepVoteConfirm:
		return s.confirmVotes(ctx, req, session)
	case stepTicketCode:
		return s.enterEventCode(ctx, req, session)
	case stepTicketType:
		return s.selectTicketType(ctx, req, session)
	case stepTicketQuantity:
		return s.enterQuantity(ctx, req, session)
	case stepTicketConfirm:
		return s.confirmTickets(ctx, req, session)
	default:
		return s.welcome(ctx, req)
	}
}

func (s *service) welcome(ctx context.Context, req Request) (*Response, error) {
	network := strings.TrimSpace(req.Network)
	if network == "" {
		network = "MTN"
	}
	return s.next(ctx, req, &Session{Step: stepWelcome, Network: network}, "Welcome to EaseVote\n1. Vote\n2. Ticket")
}

func (s *service) chooseFlow(ctx context.Context, req Request, session *Session) (*Response, error) {
	switch input(req) {
	case "1":
		return s.next(ctx, req, &Session{Step: stepVoteCode, Network: session.Network}, "Enter candidate code:")
	case "2":
		return s.next(ctx, req, &Session{Step: stepTicketCode, Network: session.Network}, "Enter event code:")
	default:
		return s.end(ctx, req, "Invalid choice. Please select 1 or 2.")
	}
}

func (s *service) enterNomineeCode(ctx context.Context, req Request, session *Session) (*Response, error) {
	nominee, err := s.nominees.Nominee(ctx, strings.ToUpper(input(req)))
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) || pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			return s.end(ctx, req, "Candidate not found or event not active.")
		}
		s.logError(ctx, "ussd nominee lookup failed", err)
		return s.end(ctx, req, "Error processing request. Please try again.")
	}
	if nominee.CostPerVote == nil || !nominee.CostPerVote.IsPositive() {
		return s.end(ctx, req, "Voting is not available for this event.")
	}

	session.Step = stepVoteCount
	session.EventID = nominee.EventID
	session.EventTitle = nominee.EventTitle
	session.CategoryID = nominee.CategoryID
	session.CandidateID = nominee.CandidateID
	session.CandidateName = nominee.CandidateName
	session.CostPerVote = nominee.CostPerVote
	msg := fmt.Sprintf("Candidate: %s\nEvent: %s\nCost: %s per vote\n\nEnter number of votes:",
		nominee.CandidateName, nominee.EventTitle, nominee.CostPerVote.StringFixed(2))
	return s.next(ctx, req, session, msg)
}

func (s *service) enterVoteCount(ctx context.Context, req Request, session *Session) (*Response, error) {
	count, err := strconv.Atoi(input(req))
	if err != nil || count <= 0 {
		return s.next(ctx, req, session, "Invalid vote count. Please enter a valid number:")
	}
	session.Step = stepVoteConfirm
	session.VoteCount = count
	session.Amount = session.CostPerVote.Mul(decimal.NewFromInt(int64(count)))
	msg := fmt.Sprintf("%d vote(s) for %s\nTotal: %s\n\n1. Confirm\n2. Cancel", count, session.CandidateName, session.Amount.StringFixed(2))
	return s.next(ctx, req, session, msg)
}

func (s *service) confirmVotes(ctx context.Context, req Request, session *Session) (*Response, error) {
	if input(req) != "1" {
		return s.end(ctx, req, "Vote cancelled.")
	}
	result, err := s.reservations.ReserveVotes(ctx, purchases.VoteReservationInput{
		EventID:     session.EventID,
		CategoryID:  session.CategoryID,
		CandidateID: session.CandidateID,
		VoteCount:   session.VoteCount,
		Customer:    s.customer(req),
		Source:      enums.PurchaseSourceUSSD,
	})
	if err != nil {
		return s.end(ctx, req, s.failure(ctx, err))
	}
	msg := fmt.Sprintf("Payment initiated for %d vote(s)\nAmount: %s\nRef: %s\nComplete payment to confirm your vote.",
		session.VoteCount, result.Purchase.Amount.StringFixed(2), result.Reference)
	return s.end(ctx, req, msg)
}

func (s *service) enterEventCode(ctx context.Context, req Request, session *Session) (*Response, error) {
	event, err := s.catalog.FindByCode(ctx, input(req), enums.EventTypeTicketing)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(ctx, "ussd event lookup failed", err)
		return s.end(ctx, req, "Error processing request. Please try again.")
	}
	if event == nil || !event.Status.Purchasable() {
		return s.end(ctx, req, "Event not found or no tickets available.")
	}
	types, err := s.catalog.ListTicketTypes(ctx, event.ID)
	if err != nil {
		s.logError(ctx, "ussd ticket types lookup failed", err)
		return s.end(ctx, req, "Error processing request. Please try again.")
	}
	if len(types) == 0 {
		return s.end(ctx, req, "Event not found or no tickets available.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nSelect ticket type:\n", event.Title)
	session.Options = make([]TicketOption, 0, len(types))
	for i, tt := range types {
		option := TicketOption{ID: tt.ID, Name: tt.Name, Price: tt.Price, Available: tt.Available()}
		session.Options = append(session.Options, option)
		fmt.Fprintf(&b, "%d. %s - %s (%d left)\n", i+1, option.Name, option.Price.StringFixed(2), option.Available)
	}
	session.Step = stepTicketType
	session.EventID = event.ID
	session.EventTitle = event.Title
	return s.next(ctx, req, session, strings.TrimRight(b.String(), "\n"))
}

func (s *service) selectTicketType(ctx context.Context, req Request, session *Session) (*Response, error) {
	choice, err := strconv.Atoi(input(req))
	if err != nil || choice < 1 || choice > len(session.Options) {
		return s.next(ctx, req, session, "Invalid selection. Please choose a valid ticket type:")
	}
	selected := session.Options[choice-1]
	session.Step = stepTicketQuantity
	session.Selected = &selected
	msg := fmt.Sprintf("%s - %s each\nAvailable: %d\n\nEnter quantity:", selected.Name, selected.Price.StringFixed(2), selected.Available)
	return s.next(ctx, req, session, msg)
}

func (s *service) enterQuantity(ctx context.Context, req Request, session *Session) (*Response, error) {
	quantity, err := strconv.Atoi(input(req))
	if err != nil || quantity <= 0 {
		return s.next(ctx, req, session, "Invalid quantity. Please enter a valid number:")
	}
	if quantity > session.Selected.Available {
		return s.next(ctx, req, session, fmt.Sprintf("Only %d tickets available. Enter quantity:", session.Selected.Available))
	}
	session.Step = stepTicketConfirm
	session.Quantity = quantity
	session.Amount = session.Selected.Price.Mul(decimal.NewFromInt(int64(quantity)))
	msg := fmt.Sprintf("%dx %s\nTotal: %s\n\n1. Confirm\n2. Cancel", quantity, session.Selected.Name, session.Amount.StringFixed(2))
	return s.next(ctx, req, session, msg)
}

func (s *service) confirmTickets(ctx context.Context, req Request, session *Session) (*Response, error) {
	if input(req) != "1" {
		return s.end(ctx, req, "Transaction cancelled.")
	}
	result, err := s.reservations.ReserveTickets(ctx, purchases.TicketReservationInput{
		EventID:      session.EventID,
		TicketTypeID: session.Selected.ID,
		Quantity:     session.Quantity,
		Customer:     s.customer(req),
		Source:       enums.PurchaseSourceUSSD,
	})
	if err != nil {
		return s.end(ctx, req, s.failure(ctx, err))
	}
	msg := fmt.Sprintf("Payment initiated for %d ticket(s)\nRef: %s\nComplete payment to get your tickets.", session.Quantity, result.Reference)
	return s.end(ctx, req, msg)
}

func (s *service) next(ctx context.Context, req Request, session *Session, msg string) (*Response, error) {
	if err := s.sessions.Save(ctx, req.MSISDN, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save ussd session")
	}
	return reply(req, msg, true), nil
}

func (s *service) end(ctx context.Context, req Request, msg string) (*Response, error) {
	if err := s.sessions.Delete(ctx, req.MSISDN); err != nil {
		s.logError(ctx, "ussd session cleanup failed", err)
	}
	return reply(req, msg, false), nil
}

func (s *service) customer(req Request) purchases.Customer {
	return purchases.Customer{Email: s.defaultEmail, Phone: req.MSISDN}
}

// failure renders a reservation error for the handset.
func (s *service) failure(ctx context.Context, err error) string {
	if typed := pkgerrors.As(err); typed != nil && !pkgerrors.IsRetryable(err) && typed.Code() != pkgerrors.CodeInternal {
		return "Error: " + typed.Message()
	}
	s.logError(ctx, "ussd reservation failed", err)
	return "Error: service unavailable. Please try again."
}

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, msg, err)
}

func input(req Request) string {
	return strings.TrimSpace(req.UserData)
}

func reply(req Request, msg string, keepOpen bool) *Response {
	return &Response{
		UserID:   req.UserID,
		MSISDN:   req.MSISDN,
		UserData: req.UserData,
		Msg:      msg,
		MsgType:  keepOpen,
	}
}
