package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/metrics"
)

const (
	defaultOrphanTimeout = time.Hour
	orphanAuditEvery     = 15 * time.Minute
)

type orphanFinder interface {
	FindOrphanedTransactions(ctx context.Context, cutoff time.Time) ([]models.PaymentTransaction, error)
}

type OrphanAuditJobParams struct {
	Logger  *logger.Logger
	Finder  orphanFinder
	Metrics *metrics.Payments
	Timeout time.Duration
}

// NewOrphanAuditJob builds the job that reports payment legs whose checkout
// never got an order group or a payment intent. It only reports; nothing is
// repaired automatically.
func NewOrphanAuditJob(params OrphanAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("orphan finder required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultOrphanTimeout
	}
	return &orphanAuditJob{
		logg:    params.Logger,
		finder:  params.Finder,
		metrics: params.Metrics,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

type orphanAuditJob struct {
	logg    *logger.Logger
	finder  orphanFinder
	metrics *metrics.Payments
	timeout time.Duration
	now     func() time.Time
}

func (j *orphanAuditJob) Name() string { return "orphan-audit" }

func (j *orphanAuditJob) Every() time.Duration { return orphanAuditEvery }

func (j *orphanAuditJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.timeout)
	orphans, err := j.finder.FindOrphanedTransactions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find orphaned payment transactions: %w", err)
	}
	j.metrics.SetOrphaned(len(orphans))
	for _, txn := range orphans {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"payment_transaction_id": txn.ID,
			"user_id":                txn.UserID.String(),
			"amount":                 txn.Amount,
			"is_fiat":                txn.IsFiat,
			"created_at":             txn.CreatedAt,
		}), "orphaned payment transaction")
	}
	return nil
}
