package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

const defaultReconcileBatchSize = 100

// FulfillmentReconcileJobParams configure the fulfillment retry job.
type FulfillmentReconcileJobParams struct {
	Logger     *logger.Logger
	Purchases  unfulfilledPurchaseReader
	Settlement fulfillmentCompleter
	BatchSize  int
}

// NewFulfillmentReconcileJob retries fulfillment for PAID purchases whose artifacts never committed.
func NewFulfillmentReconcileJob(params FulfillmentReconcileJobParams) (Job, error) {
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
		batchSize = defaultReconcileBatchSize
	}
	return &fulfillmentReconcileJob{
		logg:       params.Logger,
		purchases:  params.Purchases,
		settlement: params.Settlement,
		batchSize:  batchSize,
	}, nil
}

type fulfillmentReconcileJob struct {
	logg       *logger.Logger
	purchases  unfulfilledPurchaseReader
	settlement fulfillmentCompleter
	batchSize  int
}

func (j *fulfillmentReconcileJob) Name() string { return "fulfillment-reconcile" }

func (j *fulfillmentReconcileJob) Run(ctx context.Context) error {
	rows, err := j.purchases.ListUnfulfilledPaid(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("list unfulfilled purchases: %w", err)
	}
	var errs error
	completed := 0
	for _, purchase := range rows {
		claimed, err := j.settlement.CompleteFulfillment(ctx, purchase.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fulfill %s: %w", purchase.PaymentReference, err))
			continue
		}
		if claimed {
			completed++
		}
	}
	if len(rows) > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"pending":   len(rows),
			"completed": completed,
			"failed":    len(multierr.Errors(errs)),
		})
		j.logg.Info(logCtx, "fulfillment reconciliation complete")
	}
	return errs
}
