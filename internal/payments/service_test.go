package payments

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/internal/cart"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	dbpkg "github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
)

func (f fixture) checkout(t *testing.T, items []cart.LineItem, usedCoins int64) *PaymentIntentResult {
	t.Helper()
	res, err := f.svc.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		UserID:    f.buyer.ID,
		AddressID: f.address.ID,
		Items:     items,
		UsedCoins: usedCoins,
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func (f fixture) transfersOf(t *testing.T, groupID int64) map[[2]int64]models.PaymentTransfer {
	t.Helper()
	var rows []models.PaymentTransfer
	require.NoError(t, f.db.
		Joins("JOIN orders ON orders.id = payment_transfers.order_id").
		Where("orders.order_group_id = ?", groupID).
		Find(&rows).Error)
	out := make(map[[2]int64]models.PaymentTransfer, len(rows))
	for _, row := range rows {
		out[[2]int64{row.OrderID, row.PaymentTransactionID}] = row
	}
	return out
}

func TestCreatePaymentIntentSplitsFeesPerShop(t *testing.T) {
	f := newFixture(t)
	_, _, items := f.twoShopCart(t)

	res := f.checkout(t, items, 0)

	assert.Equal(t, "pi_1", res.PaymentIntentID)
	assert.False(t, res.CoinOnly)
	assert.Equal(t, int64(1000), res.TotalAmount)
	assert.Equal(t, int64(1000), res.FiatAmount)
	assert.Equal(t, int64(10), res.EarnedCoins)

	require.Len(t, f.gateway.intents, 1)
	intent := f.gateway.intents[0]
	assert.Equal(t, int64(1000), intent.Amount)
	assert.Equal(t, int64(150), intent.ApplicationFee)
	assert.Equal(t, "cus_buyer", intent.CustomerID)
	assert.Equal(t, transferGroup(res.OrderGroupID), intent.TransferGroup)

	var group models.OrderGroup
	require.NoError(t, f.db.First(&group, res.OrderGroupID).Error)
	assert.Equal(t, int64(1000), group.TotalAmount)
	assert.Equal(t, enums.OrderGroupStatusCreated, group.Status)
	require.NotNil(t, group.PaymentIntentID)
	assert.Equal(t, "pi_1", *group.PaymentIntentID)

	rows := f.ordersOf(t, res.OrderGroupID)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(600), rows[0].TotalAmount)
	assert.Equal(t, int64(78), rows[0].PlatformFee)
	assert.Equal(t, int64(400), rows[1].TotalAmount)
	assert.Equal(t, int64(72), rows[1].PlatformFee)
	for _, row := range rows {
		require.NotNil(t, row.PaymentIntentID)
		assert.Equal(t, "pi_1", *row.PaymentIntentID)
	}

	legs := f.legsOf(t, res.OrderGroupID)
	require.Len(t, legs, 1)
	assert.True(t, legs[0].IsFiat)
	assert.Equal(t, int64(850), legs[0].TransferAmount)
	assert.Equal(t, int64(150), legs[0].ApplicationFee)
	assert.Equal(t, legs[0].ID, group.PaymentTransactionID)

	var locks []models.OrderingItem
	require.NoError(t, f.db.Where("user_id = ?", f.buyer.ID).Find(&locks).Error)
	require.Len(t, locks, 2)
	for _, lock := range locks {
		assert.Equal(t, enums.LockTypeOrdering, lock.Type)
		require.NotNil(t, lock.PaymentIntentID)
		assert.Equal(t, "pi_1", *lock.PaymentIntentID)
	}
}

func TestCreatePaymentIntentZeroValueWritesNothing(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, 10, "acct_free")
	free := f.product(t, shop.ID, 0, nil)

	res, err := f.svc.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		UserID:    f.buyer.ID,
		AddressID: f.address.ID,
		Items:     []cart.LineItem{{ProductID: free.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, f.count(t, &models.PaymentTransaction{}))
	assert.Zero(t, f.count(t, &models.OrderGroup{}))
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Empty(t, f.gateway.intents)
}

func TestCreatePaymentIntentRequiresCustomerProfile(t *testing.T) {
	f := newFixture(t)
	_, _, items := f.twoShopCart(t)
	require.NoError(t, f.db.Where("user_id = ?", f.buyer.ID).Delete(&models.PaymentCustomer{}).Error)

	_, err := f.svc.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		UserID: f.buyer.ID, AddressID: f.address.ID, Items: items,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Zero(t, f.count(t, &models.PaymentTransaction{}))
}

func TestCreatePaymentIntentRejectsCoinShortfall(t *testing.T) {
	f := newFixture(t)
	_, _, items := f.twoShopCart(t)
	f.coin.balances[f.buyer.ExternalID] = 100

	_, err := f.svc.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		UserID: f.buyer.ID, AddressID: f.address.ID, Items: items, UsedCoins: 300,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCoin))

	_, err = f.svc.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		UserID: f.buyer.ID, AddressID: f.address.ID, Items: items, UsedCoins: 1001,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, f.count(t, &models.PaymentTransaction{}))
}

func TestCreatePaymentIntentRejectsOutOfStock(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, 10, "acct_A")
	scarce := f.product(t, shop.ID, 500, dbtest.Int64(1))

	_, err := f.svc.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		UserID: f.buyer.ID, AddressID: f.address.ID,
		Items: []cart.LineItem{{ProductID: scarce.ID, Quantity: 2}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) || pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))
	assert.Zero(t, f.count(t, &models.OrderGroup{}))
}

func TestCoinOnlyCheckoutUsesPseudoIntentAndSettlesOnConfirm(t *testing.T) {
	f := newFixture(t)
	a, b, items := f.twoShopCart(t)
	f.coin.balances[f.buyer.ExternalID] = 1000

	res := f.checkout(t, items, 1000)

	assert.True(t, res.CoinOnly)
	assert.Regexp(t, regexp.MustCompile(`^\w{28}$`), res.PaymentIntentID)
	assert.Zero(t, res.EarnedCoins)
	assert.Empty(t, f.gateway.intents)

	confirmed, err := f.svc.ConfirmPayBySec(context.Background(), f.buyer.ID, res.PaymentIntentID)
	require.NoError(t, err)
	assert.True(t, confirmed.Settled)
	assert.Equal(t, enums.PaymentTransactionStatusInTransit, confirmed.Status)

	require.Len(t, f.coin.spends, 1)
	assert.Equal(t, int64(1000), f.coin.spends[0].Amount)
	assert.Equal(t, string(enums.PurchaseFor(enums.ItemTypeProduct)), f.coin.spends[0].Action)

	require.Len(t, f.gateway.transfers, 2)
	for _, tr := range f.gateway.transfers {
		assert.Empty(t, tr.SourceTransaction)
	}

	var group models.OrderGroup
	require.NoError(t, f.db.First(&group, res.OrderGroupID).Error)
	assert.Equal(t, enums.OrderGroupStatusCompleted, group.Status)

	qtyA, soldA := f.productQuantity(t, a.ID)
	qtyB, soldB := f.productQuantity(t, b.ID)
	assert.Equal(t, [2]int64{4, 1}, [2]int64{qtyA, soldA})
	assert.Equal(t, [2]int64{4, 1}, [2]int64{qtyB, soldB})

	assert.Zero(t, f.count(t, &models.CoinActionQueue{}))
}

func TestLateLockAttachAfterCoinOnlySettlementLeavesNoLocks(t *testing.T) {
	var queued []func()
	f := newFixture(t, withQueuedAsync(&queued))
	_, _, items := f.twoShopCart(t)
	f.coin.balances[f.buyer.ExternalID] = 1000

	res := f.checkout(t, items, 1000)
	require.Len(t, queued, 1)

	confirmed, err := f.svc.ConfirmPayBySec(context.Background(), f.buyer.ID, res.PaymentIntentID)
	require.NoError(t, err)
	require.True(t, confirmed.Settled)

	queued[0]()
	assert.Zero(t, f.count(t, &models.OrderingItem{}))
}

func TestLockAttachMarksOpenCheckoutLocks(t *testing.T) {
	var queued []func()
	f := newFixture(t, withQueuedAsync(&queued))
	_, _, items := f.twoShopCart(t)

	res := f.checkout(t, items, 0)
	require.Len(t, queued, 1)
	queued[0]()

	var locks []models.OrderingItem
	require.NoError(t, f.db.Find(&locks).Error)
	require.Len(t, locks, 2)
	for _, lock := range locks {
		assert.Equal(t, enums.LockTypeOrdering, lock.Type)
		require.NotNil(t, lock.PaymentIntentID)
		assert.Equal(t, res.PaymentIntentID, *lock.PaymentIntentID)
	}
}

func TestSettleFiatLegCompletesCheckout(t *testing.T) {
	f := newFixture(t)
	a, b, items := f.twoShopCart(t)
	res := f.checkout(t, items, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.SettleFiatLeg(ctx, res.PaymentIntentID, "ch_1"))

	var group models.OrderGroup
	require.NoError(t, f.db.First(&group, res.OrderGroupID).Error)
	assert.Equal(t, enums.OrderGroupStatusCompleted, group.Status)
	require.NotNil(t, group.Code)
	require.NotNil(t, group.CompletedAt)

	rows := f.ordersOf(t, res.OrderGroupID)
	for _, row := range rows {
		assert.Equal(t, enums.OrderStatusCompleted, row.Status)
		require.NotNil(t, row.Code)
	}
	assert.NotEqual(t, *rows[0].Code, *rows[1].Code)

	qtyA, soldA := f.productQuantity(t, a.ID)
	qtyB, soldB := f.productQuantity(t, b.ID)
	assert.Equal(t, [2]int64{4, 1}, [2]int64{qtyA, soldA})
	assert.Equal(t, [2]int64{4, 1}, [2]int64{qtyB, soldB})
	assert.Zero(t, f.count(t, &models.OrderingItem{}))

	legs := f.legsOf(t, res.OrderGroupID)
	require.Len(t, legs, 1)
	assert.Equal(t, enums.PaymentTransactionStatusInTransit, legs[0].Status)
	require.NotNil(t, legs[0].PaymentServiceTxID)
	assert.Equal(t, "ch_1", *legs[0].PaymentServiceTxID)
	require.NotNil(t, legs[0].TransferID)

	require.Len(t, f.gateway.transfers, 2)
	assert.Equal(t, "acct_A", f.gateway.transfers[0].Destination)
	assert.Equal(t, int64(522), f.gateway.transfers[0].Amount)
	assert.Equal(t, "acct_B", f.gateway.transfers[1].Destination)
	assert.Equal(t, int64(328), f.gateway.transfers[1].Amount)
	for _, tr := range f.gateway.transfers {
		assert.Equal(t, "ch_1", tr.SourceTransaction)
	}

	transfers := f.transfersOf(t, res.OrderGroupID)
	require.Len(t, transfers, 2)
	rowA := transfers[[2]int64{rows[0].ID, legs[0].ID}]
	assert.Equal(t, int64(522), rowA.Amount)
	assert.Equal(t, int64(78), rowA.PlatformFee)
	assert.True(t, rowA.PlatformPercents.Equal(decimal.NewFromInt(13)))
	require.NotNil(t, rowA.TransferID)
	assert.Equal(t, "tr_1", *rowA.TransferID)

	var queued []models.CoinActionQueue
	require.NoError(t, f.db.Find(&queued).Error)
	require.Len(t, queued, 1)
	assert.Equal(t, enums.CashbackFor(enums.ItemTypeProduct), queued[0].Action)
	assert.Equal(t, int64(10), queued[0].Amount)
	assert.Equal(t, f.buyer.ExternalID, queued[0].UserExternalID)

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderGroupSettled).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	require.Len(t, f.mailer.sent, 3)
	assert.Equal(t, "buyer@example.com", f.mailer.sent[0].To)

	// Redelivery of the same charge changes nothing.
	require.NoError(t, f.svc.SettleFiatLeg(ctx, res.PaymentIntentID, "ch_1"))
	assert.Len(t, f.gateway.transfers, 2)
	assert.Len(t, f.transfersOf(t, res.OrderGroupID), 2)
	assert.Equal(t, int64(1), f.count(t, &models.CoinActionQueue{}))
	assert.Len(t, f.mailer.sent, 3)

	var moved bool
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		moved, err = f.svc.CompleteLegTransfer(ctx, tx, legs[0].ID)
		return err
	}))
	assert.True(t, moved)
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		moved, err = f.svc.CompleteLegTransfer(ctx, tx, legs[0].ID)
		return err
	}))
	assert.False(t, moved)
}

func TestMixedCheckoutSettlesAfterBothLegs(t *testing.T) {
	f := newFixture(t)
	_, _, items := f.twoShopCart(t)
	f.coin.balances[f.buyer.ExternalID] = 300
	ctx := context.Background()

	res := f.checkout(t, items, 300)
	require.Len(t, f.gateway.intents, 1)
	assert.Equal(t, int64(700), f.gateway.intents[0].Amount)
	assert.Equal(t, int64(0), f.gateway.intents[0].ApplicationFee)
	assert.Equal(t, int64(7), res.EarnedCoins)

	confirmed, err := f.svc.ConfirmPayBySec(ctx, f.buyer.ID, res.PaymentIntentID)
	require.NoError(t, err)
	assert.False(t, confirmed.Settled)
	require.Len(t, f.gateway.transfers, 1)
	assert.Equal(t, "acct_B", f.gateway.transfers[0].Destination)
	assert.Equal(t, int64(150), f.gateway.transfers[0].Amount)

	var group models.OrderGroup
	require.NoError(t, f.db.First(&group, res.OrderGroupID).Error)
	assert.Equal(t, enums.OrderGroupStatusCreated, group.Status)

	_, err = f.svc.ConfirmPayBySec(ctx, f.buyer.ID, res.PaymentIntentID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	_, err = f.svc.ConfirmPayBySec(ctx, f.buyer.ID, "pi_unknown")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.ConfirmPayBySec(ctx, uuid.New(), res.PaymentIntentID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.SettleFiatLeg(ctx, res.PaymentIntentID, "ch_1"))
	require.NoError(t, f.db.First(&group, res.OrderGroupID).Error)
	assert.Equal(t, enums.OrderGroupStatusCompleted, group.Status)

	rows := f.ordersOf(t, res.OrderGroupID)
	legs := f.legsOf(t, res.OrderGroupID)
	require.Len(t, legs, 2)
	fiat, coinLeg := legs[0], legs[1]
	require.True(t, fiat.IsFiat)
	require.False(t, coinLeg.IsFiat)

	transfers := f.transfersOf(t, res.OrderGroupID)
	require.Len(t, transfers, 3)
	expect := []struct {
		order, leg  int64
		amount, fee int64
	}{
		{rows[0].ID, fiat.ID, 522, 78},
		{rows[1].ID, fiat.ID, 178, 39},
		{rows[1].ID, coinLeg.ID, 150, 33},
	}
	for _, e := range expect {
		row, ok := transfers[[2]int64{e.order, e.leg}]
		require.True(t, ok, "missing transfer for order %d leg %d", e.order, e.leg)
		assert.Equal(t, e.amount, row.Amount)
		assert.Equal(t, e.fee, row.PlatformFee)
	}
	_, ok := transfers[[2]int64{rows[0].ID, coinLeg.ID}]
	assert.False(t, ok)
}

func TestSettlementRollsBackWhenLockCleanupFails(t *testing.T) {
	f := newFixture(t, withFailingLocks())
	a, _, items := f.twoShopCart(t)
	res := f.checkout(t, items, 0)

	err := f.svc.SettleFiatLeg(context.Background(), res.PaymentIntentID, "ch_1")
	require.Error(t, err)

	var group models.OrderGroup
	require.NoError(t, f.db.First(&group, res.OrderGroupID).Error)
	assert.Equal(t, enums.OrderGroupStatusCreated, group.Status)
	assert.Nil(t, group.Code)
	for _, row := range f.ordersOf(t, res.OrderGroupID) {
		assert.Equal(t, enums.OrderStatusCreated, row.Status)
	}
	qty, sold := f.productQuantity(t, a.ID)
	assert.Equal(t, int64(5), qty)
	assert.Zero(t, sold)
	legs := f.legsOf(t, res.OrderGroupID)
	assert.Equal(t, enums.PaymentTransactionStatusCreated, legs[0].Status)
	assert.Zero(t, f.count(t, &models.PaymentTransfer{}))
	assert.Zero(t, f.count(t, &models.CoinActionQueue{}))
	assert.Empty(t, f.mailer.sent)
}

func TestSettleFiatLegUnknownIntent(t *testing.T) {
	f := newFixture(t)
	err := f.svc.SettleFiatLeg(context.Background(), "pi_missing", "ch_1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestFailFiatLegOnlyFromCreated(t *testing.T) {
	f := newFixture(t)
	_, _, items := f.twoShopCart(t)
	res := f.checkout(t, items, 0)
	ctx := context.Background()

	fail := func() bool {
		var moved bool
		require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
			var err error
			moved, err = f.svc.FailFiatLeg(ctx, tx, res.PaymentIntentID, "card_declined")
			return err
		}))
		return moved
	}
	assert.True(t, fail())
	assert.False(t, fail())

	legs := f.legsOf(t, res.OrderGroupID)
	assert.Equal(t, enums.PaymentTransactionStatusFailed, legs[0].Status)
	require.NotNil(t, legs[0].FailureReason)
	assert.Equal(t, "card_declined", *legs[0].FailureReason)

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentLegFailed).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	// A failed leg is never settled by a late success.
	require.NoError(t, f.svc.SettleFiatLeg(ctx, res.PaymentIntentID, "ch_late"))
	assert.Empty(t, f.gateway.transfers)

	_, err := f.svc.FailFiatLeg(ctx, nil, res.PaymentIntentID, "")
	assert.ErrorIs(t, err, dbpkg.ErrTxRequired)
}

func TestHandleOrdersRequiresTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleOrders(context.Background(), nil, &models.OrderGroup{ID: 1}, nil)
	assert.ErrorIs(t, err, dbpkg.ErrTxRequired)

	_, err = f.svc.CreatePaymentTransfers(context.Background(), nil, TransferBook{})
	assert.ErrorIs(t, err, dbpkg.ErrTxRequired)
}

func TestCreatePaymentTransfersRejectsCorruptTransferRefs(t *testing.T) {
	f := newFixture(t)
	_, _, items := f.twoShopCart(t)
	res := f.checkout(t, items, 0)

	legs := f.legsOf(t, res.OrderGroupID)
	require.NotEmpty(t, legs)
	legs[0].TransferRefs = json.RawMessage(`{"1":`)
	orderRows := f.ordersOf(t, res.OrderGroupID)
	before := f.count(t, &models.PaymentTransfer{})

	var inserted int64
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = f.svc.CreatePaymentTransfers(context.Background(), tx, TransferBook{
			Orders:                  orderRows,
			Legs:                    legs,
			DefaultPlatformPercents: decimal.NewFromInt(10),
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
	assert.Zero(t, inserted)
	assert.Equal(t, before, f.count(t, &models.PaymentTransfer{}))
}

func TestStockDeltasAggregatesAcrossOrders(t *testing.T) {
	product := uuid.New()
	variant := uuid.New()
	ticket := uuid.New()
	rows := []models.Order{
		{Items: []models.OrderDetailItem{
			{ProductID: &product, ParameterSetID: &variant, Quantity: 2},
			{ProductID: &product, Quantity: 1},
		}},
		{Items: []models.OrderDetailItem{
			{ProductID: &product, ParameterSetID: &variant, Quantity: 1},
			{SessionTicketID: &ticket, Quantity: 3},
			{ProductID: &product, Quantity: 0},
		}},
	}

	deltas := stockDeltas(rows)

	require.Len(t, deltas, 3)
	assert.Equal(t, stockDelta{unit: inventory.ParameterSetUnit(variant), quantity: 3}, deltas[0])
	assert.Equal(t, stockDelta{unit: inventory.ProductUnit(product), quantity: 4}, deltas[1])
	assert.Equal(t, stockDelta{unit: inventory.SessionTicketUnit(ticket), quantity: 3}, deltas[2])
}

func TestNewPseudoIntentID(t *testing.T) {
	seen := map[string]struct{}{}
	for range 50 {
		id, err := newPseudoIntentID()
		require.NoError(t, err)
		assert.Regexp(t, `^\w{28}$`, id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 50)
}
