package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

const (
	outboxRetentionDays   = 30
	dlqRetentionDays      = 90
	outboxMinAttempts     = 10
	outboxPurgeBatchSize  = 500
	outboxPurgeMaxBatches = 20
)

// OutboxRetentionJobParams configure purging of delivered and dead purchase events.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPurger
	DLQ        dlqPurger
	// Retention and DLQRetention are in days.
	Retention    int
	DLQRetention int
	// MinAttempts matches the publisher's max attempts so only rows it gave up on are purged.
	MinAttempts int
	BatchSize   int
}

type outboxPurger interface {
	PurgeDelivered(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

type dlqPurger interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob builds the outbox purge job. The DLQ purger is
// optional; without it dead letters are kept indefinitely.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		events:       params.Repository,
		dlq:          params.DLQ,
		retention:    positiveOr(params.Retention, outboxRetentionDays),
		dlqRetention: positiveOr(params.DLQRetention, dlqRetentionDays),
		minAttempts:  positiveOr(params.MinAttempts, outboxMinAttempts),
		batchSize:    positiveOr(params.BatchSize, outboxPurgeBatchSize),
		now:          time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	events       outboxPurger
	dlq          dlqPurger
	retention    int
	dlqRetention int
	minAttempts  int
	batchSize    int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes in short transactions so the publisher's row locks are never
// held behind one large delete.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.AddDate(0, 0, -j.retention)

	var purged int64
	for batch := 0; batch < outboxPurgeMaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			deleted, err = j.events.PurgeDelivered(ctx, tx, cutoff, j.minAttempts, j.batchSize)
			return err
		})
		if err != nil {
			return fmt.Errorf("purge outbox events: %w", err)
		}
		purged += deleted
		if deleted < int64(j.batchSize) {
			break
		}
	}

	var deadLetters int64
	if j.dlq != nil {
		dlqCutoff := now.AddDate(0, 0, -j.dlqRetention)
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			deadLetters, err = j.dlq.DeleteOlderThan(ctx, tx, dlqCutoff)
			return err
		})
		if err != nil {
			return fmt.Errorf("purge outbox dlq: %w", err)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":               cutoff,
		"retention_days":       j.retention,
		"events_deleted":       purged,
		"dead_letters_deleted": deadLetters,
	}), "outbox.retention_complete")
	return nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
