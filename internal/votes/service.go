package votes

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/internal/events"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
)

// Service exposes read models over recorded votes.
type Service interface {
	Results(ctx context.Context, eventID uuid.UUID) (*Results, error)
	Nominee(ctx context.Context, code string) (*Nominee, error)
}

// CandidateResult is one nominee's tally.
type CandidateResult struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	Votes      int64     `json:"votes"`
	Percentage float64   `json:"percentage"`
}

// CategoryResult lists a category's nominees, highest tally first.
type CategoryResult struct {
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	TotalVotes int64             `json:"totalVotes"`
	Candidates []CandidateResult `json:"candidates"`
}

// Results is the leaderboard of a voting event.
type Results struct {
	EventID    uuid.UUID         `json:"eventId"`
	Title      string            `json:"title"`
	Status     enums.EventStatus `json:"status"`
	TotalVotes int64             `json:"totalVotes"`
	Categories []CategoryResult  `json:"categories"`
}

// Nominee is what a voter needs before reserving votes by nominee code.
type Nominee struct {
	EventID       uuid.UUID        `json:"eventId"`
	EventTitle    string           `json:"eventTitle"`
	CategoryID    uuid.UUID        `json:"categoryId"`
	CandidateID   uuid.UUID        `json:"candidateId"`
	CandidateName string           `json:"candidateName"`
	CostPerVote   *decimal.Decimal `json:"costPerVote,omitempty"`
	Currency      string           `json:"currency"`
	MinVotes      *int             `json:"minVotes,omitempty"`
	MaxVotes      *int             `json:"maxVotes,omitempty"`
}

type service struct {
	events events.Repository
}

// NewService wires the votes read service.
func NewService(eventsRepo events.Repository) (Service, error) {
	if eventsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events repository required")
	}
	return &service{events: eventsRepo}, nil
}

func (s *service) Results(ctx context.Context, eventID uuid.UUID) (*Results, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	if event.Type != enums.EventTypeVoting {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event is not a voting event")
	}

	categories, err := s.events.ListCategoriesWithCandidates(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}

	results := &Results{
		EventID:    event.ID,
		Title:      event.Title,
		Status:     event.Status,
		Categories: make([]CategoryResult, 0, len(categories)),
	}
	for _, category := range categories {
		row := CategoryResult{
			ID:         category.ID,
			Name:       category.Name,
			Candidates: make([]CandidateResult, 0, len(category.Candidates)),
		}
		for _, candidate := range category.Candidates {
			row.TotalVotes += candidate.Votes
		}
		for _, candidate := range category.Candidates {
			row.Candidates = append(row.Candidates, CandidateResult{
				ID:         candidate.ID,
				Name:       candidate.Name,
				Code:       candidate.Code,
				Votes:      candidate.Votes,
				Percentage: share(candidate.Votes, row.TotalVotes),
			})
		}
		results.TotalVotes += row.TotalVotes
		results.Categories = append(results.Categories, row)
	}
	return results, nil
}

func (s *service) Nominee(ctx context.Context, code string) (*Nominee, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nominee code required")
	}
	candidate, event, err := s.events.FindCandidateByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "nominee not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup nominee")
	}
	return &Nominee{
		EventID:       event.ID,
		EventTitle:    event.Title,
		CategoryID:    candidate.CategoryID,
		CandidateID:   candidate.ID,
		CandidateName: candidate.Name,
		CostPerVote:   event.CostPerVote,
		Currency:      event.Currency,
		MinVotes:      event.MinVotesPerPurchase,
		MaxVotes:      event.MaxVotesPerPurchase,
	}, nil
}

// share is votes/total as a percentage rounded to two places.
func share(votes, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(votes)*10000/float64(total)) / 100
}
