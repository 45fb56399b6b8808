package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	"github.com/angelmondragon/vibes-market-backend/internal/settings"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/metrics"
)

type lockSweeper interface {
	Sweep(ctx context.Context, scope inventory.Scope, lockType enums.LockType, ttl time.Duration, now time.Time) (inventory.SweepResult, error)
}

type durationSettings interface {
	Duration(ctx context.Context, key string, defSeconds int64) (time.Duration, error)
}

type LockExpiryJobParams struct {
	Logger   *logger.Logger
	Ledger   lockSweeper
	Settings durationSettings
	Metrics  *metrics.Payments
}

// NewLockExpiryJob builds the job that drops checkout locks older than their
// configured lifetime. Cart locks never expire here.
func NewLockExpiryJob(params LockExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings required")
	}
	return &lockExpiryJob{
		logg:     params.Logger,
		ledger:   params.Ledger,
		settings: params.Settings,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

type lockExpiryJob struct {
	logg     *logger.Logger
	ledger   lockSweeper
	settings durationSettings
	metrics  *metrics.Payments
	now      func() time.Time
}

func (j *lockExpiryJob) Name() string { return "lock-expiry" }

// Run sweeps both scopes. A failing scope does not stop the other.
func (j *lockExpiryJob) Run(ctx context.Context) error {
	now := j.now()
	return multierr.Combine(
		j.sweep(ctx, inventory.ScopeItems, settings.KeyOrderingItemsInterval, now),
		j.sweep(ctx, inventory.ScopeExperiences, settings.KeyExperienceOrderManagementInterval, now),
	)
}

func (j *lockExpiryJob) sweep(ctx context.Context, scope inventory.Scope, key string, now time.Time) error {
	ttl, err := j.settings.Duration(ctx, key, settings.DefaultLockInterval)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	res, err := j.ledger.Sweep(ctx, scope, enums.LockTypeOrdering, ttl, now)
	if err != nil {
		return fmt.Errorf("sweep %s locks: %w", scope, err)
	}
	j.metrics.LocksReleased(string(scope), res.Deleted)
	if res.Deleted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"scope":    scope,
			"ttl":      ttl.String(),
			"released": res.Deleted,
			"units":    len(res.UnitIDs),
		}), "expired locks released")
	}
	return nil
}
