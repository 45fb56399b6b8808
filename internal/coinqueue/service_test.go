package coinqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/internal/customers"
	"github.com/angelmondragon/vibes-market-backend/internal/notifications"
	"github.com/angelmondragon/vibes-market-backend/pkg/coin"
	dbpkg "github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
)

type fakeCoin struct {
	credits []coin.OperationRequest
	spends  []coin.OperationRequest
	failFor string
}

func (f *fakeCoin) Spend(_ context.Context, req coin.OperationRequest) (*coin.Receipt, error) {
	if req.UserExternalID == f.failFor {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "coin service down")
	}
	f.spends = append(f.spends, req)
	return &coin.Receipt{TransactionID: fmt.Sprintf("spend-%d", len(f.spends))}, nil
}

func (f *fakeCoin) Credit(_ context.Context, req coin.OperationRequest) (*coin.Receipt, error) {
	if req.UserExternalID == f.failFor {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "coin service down")
	}
	f.credits = append(f.credits, req)
	return &coin.Receipt{TransactionID: fmt.Sprintf("credit-%d", len(f.credits))}, nil
}

func (f *fakeCoin) Balance(context.Context, string) (int64, error) { return 0, nil }

type recordingMailer struct {
	sent []notifications.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notifications.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	coin   *fakeCoin
	mailer *recordingMailer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	fc := &fakeCoin{}
	mailer := &recordingMailer{}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(db),
		Coin:    fc,
		AssetID: "vibes-coin",
		Users:   customers.NewRepository(db),
		Mailer:  mailer,
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)
	return fixture{db: db, svc: svc, coin: fc, mailer: mailer}
}

func (f fixture) enqueue(t *testing.T, entry Entry) {
	t.Helper()
	require.NoError(t, dbpkg.FromGorm(f.db).WithTx(context.Background(), func(tx *gorm.DB) error {
		return f.svc.Enqueue(context.Background(), tx, entry)
	}))
}

func (f fixture) rows(t *testing.T) []models.CoinActionQueue {
	t.Helper()
	var rows []models.CoinActionQueue
	require.NoError(t, f.db.Order("id ASC").Find(&rows).Error)
	return rows
}

func TestEnqueueRequiresTransaction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.svc.Enqueue(context.Background(), nil, Entry{Action: enums.CoinActionProductPurchaseCashback, UserExternalID: "ext", Amount: 1})
	assert.ErrorIs(t, err, dbpkg.ErrTxRequired)
}

func TestEnqueueValidatesEntry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cases := []Entry{
		{Action: "bogus", UserExternalID: "ext", Amount: 1},
		{Action: enums.CoinActionProductPurchaseCashback, Amount: 1},
		{Action: enums.CoinActionProductPurchaseCashback, UserExternalID: "ext", Amount: 0},
	}
	for _, entry := range cases {
		err := dbpkg.FromGorm(f.db).WithTx(context.Background(), func(tx *gorm.DB) error {
			return f.svc.Enqueue(context.Background(), tx, entry)
		})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "entry %+v", entry)
	}
	assert.Empty(t, f.rows(t))
}

func TestExecQueueCreditsAndSpends(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	f.enqueue(t, Entry{Action: enums.CoinActionProductPurchaseCashback, UserExternalID: "ext-1", Amount: 10, StartedAt: now.Add(-time.Minute)})
	f.enqueue(t, Entry{Action: enums.CoinActionStorePurchase, UserExternalID: "ext-2", Amount: 30, StartedAt: now.Add(-time.Minute)})

	result, err := f.svc.ExecQueue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Result{Executed: 2}, result)

	require.Len(t, f.coin.credits, 1)
	require.Len(t, f.coin.spends, 1)
	assert.Equal(t, "ext-1", f.coin.credits[0].UserExternalID)
	assert.Equal(t, "ext-2", f.coin.spends[0].UserExternalID)

	rows := f.rows(t)
	assert.Equal(t, fmt.Sprintf("coin-action-%d", rows[0].ID), f.coin.credits[0].IdempotencyKey)
	for _, row := range rows {
		assert.Equal(t, enums.CoinActionStatusCompleted, row.Status)
		assert.Equal(t, "vibes-coin", row.AssetID)
		require.NotNil(t, row.PaymentServiceTxID)
		require.NotNil(t, row.CompletedAt)
	}

	result, err = f.svc.ExecQueue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Len(t, f.coin.credits, 1)
}

func TestExecQueueSkipsFutureAndUnsupportedRows(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	f.enqueue(t, Entry{Action: enums.CoinActionExperiencePurchaseCharge, UserExternalID: "ext-1", Amount: 10, StartedAt: now.Add(time.Hour)})
	require.NoError(t, f.db.Create(&models.CoinActionQueue{
		Action:         "legacy_bonus",
		UserExternalID: "ext-1",
		AssetID:        "vibes-coin",
		Amount:         5,
		Status:         enums.CoinActionStatusCreated,
		StartedAt:      now.Add(-time.Hour),
	}).Error)

	result, err := f.svc.ExecQueue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2}, result)
	assert.Empty(t, f.coin.credits)
	for _, row := range f.rows(t) {
		assert.Equal(t, enums.CoinActionStatusCreated, row.Status)
	}
}

func TestExecQueueBatchTakesOldestCreatedRows(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < BatchSize; i++ {
		f.enqueue(t, Entry{Action: enums.CoinActionExperiencePurchaseCharge, UserExternalID: "ext-1", Amount: 10, StartedAt: now.Add(time.Hour)})
	}
	f.enqueue(t, Entry{Action: enums.CoinActionExperiencePurchaseCharge, UserExternalID: "ext-2", Amount: 10, StartedAt: now.Add(-time.Minute)})

	result, err := f.svc.ExecQueue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: BatchSize}, result)
	assert.Empty(t, f.coin.credits)
	assert.Empty(t, f.coin.spends)

	// Once the rows ahead of it are due and done, the waiting row runs.
	result, err = f.svc.ExecQueue(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, BatchSize, result.Executed)
	result, err = f.svc.ExecQueue(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Executed)
}

func TestCheckAction(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, CheckAction(models.CoinActionQueue{Action: enums.CoinActionStorePurchaseCashback, StartedAt: now}, now))
	assert.False(t, CheckAction(models.CoinActionQueue{Action: enums.CoinActionStorePurchaseCashback, StartedAt: now.Add(time.Second)}, now))
	assert.False(t, CheckAction(models.CoinActionQueue{Action: "unknown", StartedAt: now}, now))
}

func TestExecQueueFailureAbortsRemainingRows(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	f.coin.failFor = "ext-bad"

	f.enqueue(t, Entry{Action: enums.CoinActionProductPurchaseCashback, UserExternalID: "ext-ok", Amount: 1, StartedAt: now})
	f.enqueue(t, Entry{Action: enums.CoinActionProductPurchaseCashback, UserExternalID: "ext-bad", Amount: 1, StartedAt: now})
	f.enqueue(t, Entry{Action: enums.CoinActionProductPurchaseCashback, UserExternalID: "ext-later", Amount: 1, StartedAt: now})

	result, err := f.svc.ExecQueue(context.Background(), now)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, 1, result.Executed)

	rows := f.rows(t)
	assert.Equal(t, enums.CoinActionStatusCompleted, rows[0].Status)
	assert.Equal(t, enums.CoinActionStatusCreated, rows[1].Status)
	assert.Equal(t, enums.CoinActionStatusCreated, rows[2].Status)
	require.Len(t, f.coin.credits, 1)
}

func TestPromoChargeSendsEmail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	user := models.User{ID: uuid.New(), ExternalID: "ext-promo", Email: "buyer@example.com", DisplayName: "Buyer"}
	require.NoError(t, f.db.Create(&user).Error)

	f.enqueue(t, Entry{Action: enums.CoinActionExperiencePurchaseChargePromo, UserExternalID: "ext-promo", Amount: 500, StartedAt: now})
	f.enqueue(t, Entry{Action: enums.CoinActionExperiencePurchaseCharge, UserExternalID: "ext-promo", Amount: 100, StartedAt: now})

	_, err := f.svc.ExecQueue(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "buyer@example.com", f.mailer.sent[0].To)
	assert.Equal(t, notifications.TemplateCoinCharged, f.mailer.sent[0].Template)
	assert.Equal(t, int64(500), f.mailer.sent[0].Data["amount"])
}

func TestPromoChargeWithoutUserStillCompletes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	f.enqueue(t, Entry{Action: enums.CoinActionExperiencePurchaseChargePromo, UserExternalID: "ext-ghost", Amount: 500, StartedAt: now})

	result, err := f.svc.ExecQueue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Executed)
	assert.Empty(t, f.mailer.sent)
}
