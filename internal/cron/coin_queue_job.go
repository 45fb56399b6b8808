package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/vibes-market-backend/internal/coinqueue"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
)

type coinQueueRunner interface {
	ExecQueue(ctx context.Context, now time.Time) (coinqueue.Result, error)
}

type CoinQueueJobParams struct {
	Logger *logger.Logger
	Queue  coinQueueRunner
}

// NewCoinQueueJob builds the job that drains due coin actions.
func NewCoinQueueJob(params CoinQueueJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("coin queue required")
	}
	return &coinQueueJob{logg: params.Logger, queue: params.Queue, now: time.Now}, nil
}

type coinQueueJob struct {
	logg  *logger.Logger
	queue coinQueueRunner
	now   func() time.Time
}

func (j *coinQueueJob) Name() string { return "coin-action-queue" }

func (j *coinQueueJob) Run(ctx context.Context) error {
	res, err := j.queue.ExecQueue(ctx, j.now())
	if res.Executed > 0 || res.Skipped > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"executed": res.Executed,
			"skipped":  res.Skipped,
		}), "coin actions processed")
	}
	if err != nil {
		return fmt.Errorf("coin action queue: %w", err)
	}
	return nil
}
