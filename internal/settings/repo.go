package settings

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

// KeyPaymentGateway stores the gateway used for new purchases.
const KeyPaymentGateway = "payment_gateway"

// Repository persists key/value settings.
type Repository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	Upsert(ctx context.Context, key, value string) error
	ActiveGateway(ctx context.Context) (enums.GatewayName, bool, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *repository) Upsert(ctx context.Context, key, value string) error {
	row := models.Setting{Key: key, Value: value, UpdatedAt: r.now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// ActiveGateway returns the stored gateway. ok is false when nothing valid is stored.
func (r *repository) ActiveGateway(ctx context.Context) (enums.GatewayName, bool, error) {
	setting, err := r.Get(ctx, KeyPaymentGateway)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	name, err := enums.ParseGatewayName(setting.Value)
	if err != nil {
		return "", false, nil
	}
	return name, true, nil
}
