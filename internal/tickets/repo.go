package tickets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/pagination"
)

// Repository exposes persistence helpers for issued tickets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error)
	ListByReference(ctx context.Context, reference string) ([]models.Ticket, error)
	ListByEvent(ctx context.Context, params listTicketsParams) ([]models.Ticket, *pagination.Cursor, error)
	MarkUsed(ctx context.Context, ticketNumber string, scannerID *uuid.UUID, now time.Time) (scanResult, error)
	CountsByTicketType(ctx context.Context, eventID uuid.UUID) (map[uuid.UUID]issuedCounts, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a tickets repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listTicketsParams struct {
	EventID  uuid.UUID
	Limit    int
	Cursor   *pagination.Cursor
	UsedOnly bool
}

type scanResult struct {
	Updated bool
	Found   bool
}

type issuedCounts struct {
	TicketTypeID uuid.UUID `gorm:"column:ticket_type_id"`
	Issued       int64     `gorm:"column:issued"`
	Scanned      int64     `gorm:"column:scanned"`
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := r.db.WithContext(ctx).Where("ticket_number = ?", ticketNumber).First(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repositoryImpl) ListByReference(ctx context.Context, reference string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Joins("JOIN purchases ON purchases.id = tickets.purchase_id").
		Where("purchases.payment_reference = ?", reference).
		Order("tickets.ticket_number ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *repositoryImpl) ListByEvent(ctx context.Context, params listTicketsParams) ([]models.Ticket, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Ticket{}).Where("event_id = ?", params.EventID)
	if params.UsedOnly {
		query = query.Where("is_used = ?", true)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var tickets []models.Ticket
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&tickets).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Trim(tickets, params.Limit, func(t models.Ticket) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return page, next, nil
}

// MarkUsed flips is_used exactly once; a second scan updates nothing.
func (r *repositoryImpl) MarkUsed(ctx context.Context, ticketNumber string, scannerID *uuid.UUID, now time.Time) (scanResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("ticket_number = ? AND is_used = ?", ticketNumber, false).
		UpdateColumns(map[string]any{
			"is_used":    true,
			"used_at":    now,
			"scanned_by": scannerID,
		})
	if result.Error != nil {
		return scanResult{}, result.Error
	}

	scan := scanResult{Updated: result.RowsAffected > 0}
	if scan.Updated {
		scan.Found = true
		return scan, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("ticket_number = ?", ticketNumber).
		Count(&count).Error; err != nil {
		return scanResult{}, err
	}
	scan.Found = count > 0
	return scan, nil
}

func (r *repositoryImpl) CountsByTicketType(ctx context.Context, eventID uuid.UUID) (map[uuid.UUID]issuedCounts, error) {
	var rows []issuedCounts
	err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Select("ticket_type_id, COUNT(*) AS issued, SUM(CASE WHEN is_used THEN 1 ELSE 0 END) AS scanned").
		Where("event_id = ?", eventID).
		Group("ticket_type_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]issuedCounts, len(rows))
	for _, row := range rows {
		counts[row.TicketTypeID] = row
	}
	return counts, nil
}
