package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

const (
	defaultReaperBatchSize  = 200
	defaultReaperMaxBatches = 10
)

// ExpiryReaperParams configure the hold reaper.
type ExpiryReaperParams struct {
	Logger     *logger.Logger
	Purchases  expiredPurchaseReader
	Settlement purchaseExpirer
	BatchSize  int
	MaxBatches int
}

// ExpiryReaper reclaims PENDING purchases whose hold lapsed. Each purchase goes through
// the same conditional PENDING transition as a failed settlement, so a sweep racing a
// late webhook leaves exactly one winner.
type ExpiryReaper struct {
	logg       *logger.Logger
	purchases  expiredPurchaseReader
	settlement purchaseExpirer
	batchSize  int
	maxBatches int
	now        func() time.Time
}

// NewExpiryReaper builds the reaper job.
func NewExpiryReaper(params ExpiryReaperParams) (*ExpiryReaper, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement coordinator required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultReaperBatchSize
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultReaperMaxBatches
	}
	return &ExpiryReaper{
		logg:       params.Logger,
		purchases:  params.Purchases,
		settlement: params.Settlement,
		batchSize:  batchSize,
		maxBatches: maxBatches,
		now:        time.Now,
	}, nil
}

func (j *ExpiryReaper) Name() string { return "expiry-reaper" }

func (j *ExpiryReaper) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx, j.now().UTC())
	return err
}

// Sweep expires every PENDING purchase with expires_at <= now and returns how many
// holds it released. Purchases settled concurrently are skipped, not counted.
func (j *ExpiryReaper) Sweep(ctx context.Context, now time.Time) (int, error) {
	var errs error
	released, skipped := 0, 0
	for batch := 0; batch < j.maxBatches; batch++ {
		rows, err := j.purchases.ListExpiredPending(ctx, now, j.batchSize)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list expired purchases: %w", err))
			break
		}
		progressed := false
		for i := range rows {
			closed, err := j.settlement.Expire(ctx, &rows[i])
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", rows[i].PaymentReference, err))
				continue
			}
			progressed = true
			if closed {
				released++
			} else {
				skipped++
			}
		}
		if len(rows) < j.batchSize || !progressed {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"released": released,
		"skipped":  skipped,
		"failed":   len(multierr.Errors(errs)),
		"cutoff":   now,
	})
	if released > 0 || errs != nil {
		j.logg.Info(logCtx, "expiry sweep complete")
	}
	return released, errs
}
