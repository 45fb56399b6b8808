package coinqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/internal/notifications"
	"github.com/angelmondragon/vibes-market-backend/pkg/coin"
	dbpkg "github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/metrics"
)

// BatchSize caps the rows executed per tick.
const BatchSize = 20

// Entry is a coin operation to run later.
type Entry struct {
	Action         enums.CoinAction
	UserExternalID string
	Amount         int64
	StartedAt      time.Time
	OrderGroupID   *int64
}

// Enqueuer is what settlement depends on.
type Enqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, entry Entry) error
}

type userLookup interface {
	FindUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
}

type ServiceParams struct {
	Repo    Repository
	Coin    coin.Ledger
	AssetID string
	Users   userLookup
	Mailer  notifications.Mailer
	Metrics *metrics.Payments
	Logger  *logger.Logger
}

// Result counts what one ExecQueue tick did.
type Result struct {
	Executed int
	Skipped  int
}

type Service struct {
	repo    Repository
	coin    coin.Ledger
	assetID string
	users   userLookup
	mailer  notifications.Mailer
	metrics *metrics.Payments
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("coin queue repository required")
	}
	if params.Coin == nil {
		return nil, fmt.Errorf("coin ledger required")
	}
	if strings.TrimSpace(params.AssetID) == "" {
		return nil, fmt.Errorf("coin asset id required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:    params.Repo,
		coin:    params.Coin,
		assetID: params.AssetID,
		users:   params.Users,
		mailer:  params.Mailer,
		metrics: params.Metrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Enqueue records entry in the caller's transaction.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return dbpkg.ErrTxRequired
	}
	if !entry.Action.IsSupported() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported coin action %q", entry.Action)
	}
	if strings.TrimSpace(entry.UserExternalID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user external id is required")
	}
	if entry.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "coin amount must be positive")
	}
	startedAt := entry.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}
	row := &models.CoinActionQueue{
		Action:         entry.Action,
		UserExternalID: entry.UserExternalID,
		AssetID:        s.assetID,
		Amount:         entry.Amount,
		Status:         enums.CoinActionStatusCreated,
		StartedAt:      startedAt.UTC(),
		OrderGroupID:   entry.OrderGroupID,
	}
	return s.repo.WithTx(tx).Create(ctx, row)
}

// CheckAction reports whether row may run at now.
func CheckAction(row models.CoinActionQueue, now time.Time) bool {
	if row.StartedAt.After(now) {
		return false
	}
	return row.Action.IsSupported()
}

// ExecQueue runs up to BatchSize created rows. The first failing row aborts
// the rest of the tick and is returned to created for the next one.
func (s *Service) ExecQueue(ctx context.Context, now time.Time) (Result, error) {
	var result Result
	rows, err := s.repo.FindCreated(ctx, BatchSize)
	if err != nil {
		return result, fmt.Errorf("load coin action queue: %w", err)
	}
	for _, row := range rows {
		if !CheckAction(row, now) {
			result.Skipped++
			s.metrics.CoinAction(string(row.Action), metrics.ResultSkipped)
			continue
		}
		executed, err := s.execute(ctx, row, now)
		if err != nil {
			s.metrics.CoinAction(string(row.Action), metrics.ResultFailure)
			return result, fmt.Errorf("coin action %d: %w", row.ID, err)
		}
		if !executed {
			result.Skipped++
			continue
		}
		result.Executed++
		s.metrics.CoinAction(string(row.Action), metrics.ResultSuccess)
	}
	return result, nil
}

func (s *Service) execute(ctx context.Context, row models.CoinActionQueue, now time.Time) (bool, error) {
	claimed, err := s.repo.Transition(ctx, row.ID, enums.CoinActionStatusCreated, enums.CoinActionStatusInProgress, nil)
	if err != nil {
		return false, fmt.Errorf("mark in progress: %w", err)
	}
	if !claimed {
		return false, nil
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"coin_action_id": row.ID,
		"action":         row.Action,
	})
	req := coin.OperationRequest{
		UserExternalID: row.UserExternalID,
		Amount:         row.Amount,
		Action:         string(row.Action),
		IdempotencyKey: fmt.Sprintf("coin-action-%d", row.ID),
	}
	var receipt *coin.Receipt
	if row.Action.IsCredit() {
		receipt, err = s.coin.Credit(ctx, req)
	} else {
		receipt, err = s.coin.Spend(ctx, req)
	}
	if err != nil {
		if _, revertErr := s.repo.Transition(ctx, row.ID, enums.CoinActionStatusInProgress, enums.CoinActionStatusCreated, nil); revertErr != nil {
			s.logg.Error(ctx, "return coin action to queue", revertErr)
		}
		return false, err
	}

	if row.Action == enums.CoinActionExperiencePurchaseChargePromo {
		s.notifyCharged(ctx, row)
	}

	if _, err := s.repo.Transition(ctx, row.ID, enums.CoinActionStatusInProgress, enums.CoinActionStatusCompleted, map[string]any{
		"payment_service_tx_id": receipt.TransactionID,
		"completed_at":          now.UTC(),
	}); err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	s.logg.Info(ctx, "coin action completed")
	return true, nil
}

func (s *Service) notifyCharged(ctx context.Context, row models.CoinActionQueue) {
	if s.users == nil || s.mailer == nil {
		return
	}
	user, err := s.users.FindUserByExternalID(ctx, row.UserExternalID)
	if err != nil {
		s.logg.Error(ctx, "load user for coin charge e-mail", err)
		return
	}
	notifications.SendBestEffort(ctx, s.mailer, s.logg, notifications.Message{
		To:       user.Email,
		Template: notifications.TemplateCoinCharged,
		Data: map[string]any{
			"displayName": user.DisplayName,
			"amount":      row.Amount,
		},
	})
}
