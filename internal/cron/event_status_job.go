package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

// EventStatusJobParams configure the event lifecycle job.
type EventStatusJobParams struct {
	Logger *logger.Logger
	Events eventStatusAdvancer
}

// NewEventStatusJob moves published events to LIVE at start_date and to ENDED at end_date.
func NewEventStatusJob(params EventStatusJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("events repository required")
	}
	return &eventStatusJob{logg: params.Logger, events: params.Events, now: time.Now}, nil
}

type eventStatusJob struct {
	logg   *logger.Logger
	events eventStatusAdvancer
	now    func() time.Time
}

func (j *eventStatusJob) Name() string { return "event-status" }

func (j *eventStatusJob) Run(ctx context.Context) error {
	started, ended, err := j.events.AdvanceStatuses(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("advance event statuses: %w", err)
	}
	if started > 0 || ended > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{"started": started, "ended": ended})
		j.logg.Info(logCtx, "event statuses advanced")
	}
	return nil
}
