package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

// Repository reads the event aggregate. Counter columns are written only by the inventory ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	FindByCode(ctx context.Context, code string, eventType enums.EventType) (*models.Event, error)
	FindTicketType(ctx context.Context, eventID, ticketTypeID uuid.UUID) (*models.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error)
	FindCandidate(ctx context.Context, eventID, categoryID, candidateID uuid.UUID) (*models.Candidate, error)
	FindCandidateByCode(ctx context.Context, code string) (*models.Candidate, *models.Event, error)
	ListCategoriesWithCandidates(ctx context.Context, eventID uuid.UUID) ([]models.Category, error)
	AdvanceStatuses(ctx context.Context, now time.Time) (started int64, ended int64, err error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an events repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByID returns a non-deleted event.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// FindByCode looks up an event by its public code, case-insensitively.
func (r *repository) FindByCode(ctx context.Context, code string, eventType enums.EventType) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Where("UPPER(event_code) = ? AND type = ? AND is_deleted = ?", strings.ToUpper(strings.TrimSpace(code)), eventType, false).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) FindTicketType(ctx context.Context, eventID, ticketTypeID uuid.UUID) (*models.TicketType, error) {
	var tt models.TicketType
	err := r.db.WithContext(ctx).
		Where("id = ? AND event_id = ?", ticketTypeID, eventID).
		First(&tt).Error
	if err != nil {
		return nil, err
	}
	return &tt, nil
}

func (r *repository) ListTicketTypes(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error) {
	var rows []models.TicketType
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindCandidate(ctx context.Context, eventID, categoryID, candidateID uuid.UUID) (*models.Candidate, error) {
	var candidate models.Candidate
	err := r.db.WithContext(ctx).
		Where("id = ? AND category_id = ? AND event_id = ?", candidateID, categoryID, eventID).
		First(&candidate).Error
	if err != nil {
		return nil, err
	}
	return &candidate, nil
}

// FindCandidateByCode resolves a nominee code among events currently open for purchase.
func (r *repository) FindCandidateByCode(ctx context.Context, code string) (*models.Candidate, *models.Event, error) {
	var candidate models.Candidate
	err := r.db.WithContext(ctx).
		Joins("JOIN events ON events.id = candidates.event_id").
		Where("UPPER(candidates.code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Where("events.is_deleted = ? AND events.status IN ?", false, []enums.EventStatus{enums.EventStatusPublished, enums.EventStatusLive}).
		First(&candidate).Error
	if err != nil {
		return nil, nil, err
	}
	event, err := r.FindByID(ctx, candidate.EventID)
	if err != nil {
		return nil, nil, err
	}
	return &candidate, event, nil
}

func (r *repository) ListCategoriesWithCandidates(ctx context.Context, eventID uuid.UUID) ([]models.Category, error) {
	var rows []models.Category
	err := r.db.WithContext(ctx).
		Preload("Candidates", func(db *gorm.DB) *gorm.DB {
			return db.Order("votes DESC").Order("name ASC")
		}).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// AdvanceStatuses moves PUBLISHED events that have started to LIVE and LIVE events that have finished to ENDED.
func (r *repository) AdvanceStatuses(ctx context.Context, now time.Time) (int64, int64, error) {
	db := r.db.WithContext(ctx)
	started := db.Model(&models.Event{}).
		Where("status = ? AND is_deleted = ? AND start_date IS NOT NULL AND start_date <= ?", enums.EventStatusPublished, false, now).
		Where("end_date IS NULL OR end_date > ?", now).
		Updates(map[string]any{"status": enums.EventStatusLive, "updated_at": now})
	if started.Error != nil {
		return 0, 0, started.Error
	}
	ended := db.Model(&models.Event{}).
		Where("status IN ? AND is_deleted = ? AND end_date IS NOT NULL AND end_date <= ?", []enums.EventStatus{enums.EventStatusPublished, enums.EventStatusLive}, false, now).
		Updates(map[string]any{"status": enums.EventStatusEnded, "updated_at": now})
	if ended.Error != nil {
		return started.RowsAffected, 0, ended.Error
	}
	return started.RowsAffected, ended.RowsAffected, nil
}
