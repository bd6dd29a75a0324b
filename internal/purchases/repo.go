package purchases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

// Repository persists purchases. Status changes only through TransitionFromPending.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	FindByReference(ctx context.Context, reference string) (*models.Purchase, error)
	TransitionFromPending(ctx context.Context, id uuid.UUID, to enums.PurchaseStatus, at time.Time) (bool, error)
	SetGatewayReference(ctx context.Context, id uuid.UUID, gatewayReference string) error
	ClaimForFulfillment(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	RecordTicketNumbers(ctx context.Context, id uuid.UUID, numbers []string) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Purchase, error)
	ListUnfulfilledPaid(ctx context.Context, limit int) ([]models.Purchase, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a purchases repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

// TransitionFromPending moves a purchase out of PENDING. It reports false when another
// actor already moved it, which is the single arbiter between webhook, verify and reaper.
func (r *repository) TransitionFromPending(ctx context.Context, id uuid.UUID, to enums.PurchaseStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if to == enums.PurchaseStatusPaid {
		updates["paid_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetGatewayReference(ctx context.Context, id uuid.UUID, gatewayReference string) error {
	return r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ?", id).
		Update("gateway_reference", gatewayReference).Error
}

// ClaimForFulfillment stamps fulfilled_at on a paid, unfulfilled purchase. Only one caller wins.
func (r *repository) ClaimForFulfillment(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ? AND fulfilled_at IS NULL", id, enums.PurchaseStatusPaid).
		Updates(map[string]any{"fulfilled_at": at, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RecordTicketNumbers(ctx context.Context, id uuid.UUID, numbers []string) error {
	return r.db.WithContext(ctx).
		Model(&models.Purchase{ID: id}).
		Select("ticket_numbers").
		Updates(&models.Purchase{TicketNumbers: numbers}).Error
}

// ListExpiredPending returns PENDING purchases whose hold lapsed, oldest first.
func (r *repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Purchase, error) {
	var rows []models.Purchase
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.PurchaseStatusPending, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// ListUnfulfilledPaid returns PAID purchases whose fulfillment never committed.
func (r *repository) ListUnfulfilledPaid(ctx context.Context, limit int) ([]models.Purchase, error) {
	var rows []models.Purchase
	q := r.db.WithContext(ctx).
		Where("status = ? AND fulfilled_at IS NULL", enums.PurchaseStatusPaid).
		Order("paid_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
