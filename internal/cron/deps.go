package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/pkg/db/models"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type expiredPurchaseReader interface {
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Purchase, error)
}

type purchaseExpirer interface {
	Expire(ctx context.Context, purchase *models.Purchase) (bool, error)
}

type unfulfilledPurchaseReader interface {
	ListUnfulfilledPaid(ctx context.Context, limit int) ([]models.Purchase, error)
}

type fulfillmentCompleter interface {
	CompleteFulfillment(ctx context.Context, purchaseID uuid.UUID) (bool, error)
}

type eventStatusAdvancer interface {
	AdvanceStatuses(ctx context.Context, now time.Time) (started int64, ended int64, err error)
}
