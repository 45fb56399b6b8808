package orders

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// Repository defines persistence for order groups, orders, payment legs and
// transfers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreatePaymentTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	CreateOrderGroup(ctx context.Context, group *models.OrderGroup) error
	CreateOrders(ctx context.Context, orders []models.Order) error
	CreatePaymentTransfers(ctx context.Context, transfers []models.PaymentTransfer) (int64, error)

	LinkTransactionsToGroup(ctx context.Context, txnIDs []int64, groupID int64) error
	SetGroupPaymentIntent(ctx context.Context, groupID int64, intentID string) error
	SetTransactionPaymentIntent(ctx context.Context, txnID int64, intentID string) error

	FindGroup(ctx context.Context, groupID int64) (*models.OrderGroup, error)
	FindGroupByIntent(ctx context.Context, intentID string) (*models.OrderGroup, error)
	FindOrdersByIntent(ctx context.Context, intentID string) ([]models.Order, error)
	FindOrdersByGroup(ctx context.Context, groupID int64) ([]models.Order, error)
	FindTransaction(ctx context.Context, txnID int64) (*models.PaymentTransaction, error)
	FindTransactionByIntent(ctx context.Context, intentID string, isFiat bool) (*models.PaymentTransaction, error)
	FindTransactionsByGroup(ctx context.Context, groupID int64) ([]models.PaymentTransaction, error)
	FindTransfersByGroup(ctx context.Context, groupID int64) ([]models.PaymentTransfer, error)
	FindOrphanedTransactions(ctx context.Context, cutoff time.Time) ([]models.PaymentTransaction, error)

	CompleteGroup(ctx context.Context, groupID int64, code string, completedAt time.Time) (bool, error)
	CompleteOrder(ctx context.Context, orderID int64, code string, completedAt time.Time) (bool, error)
	TransitionTransaction(ctx context.Context, txnID int64, from, to enums.PaymentTransactionStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePaymentTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	if txn.Status == "" {
		txn.Status = enums.PaymentTransactionStatusCreated
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) CreateOrderGroup(ctx context.Context, group *models.OrderGroup) error {
	if group.Status == "" {
		group.Status = enums.OrderGroupStatusCreated
	}
	return r.db.WithContext(ctx).Omit("Orders").Create(group).Error
}

// CreateOrders inserts the orders together with their detail items.
func (r *repository) CreateOrders(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	for i := range orders {
		if orders[i].Status == "" {
			orders[i].Status = enums.OrderStatusCreated
		}
	}
	return r.db.WithContext(ctx).Create(&orders).Error
}

// CreatePaymentTransfers skips rows already recorded for the same order and
// leg and returns how many were inserted.
func (r *repository) CreatePaymentTransfers(ctx context.Context, transfers []models.PaymentTransfer) (int64, error) {
	if len(transfers) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "payment_transaction_id"}},
			DoNothing: true,
		}).
		Create(&transfers)
	return res.RowsAffected, res.Error
}

func (r *repository) LinkTransactionsToGroup(ctx context.Context, txnIDs []int64, groupID int64) error {
	if len(txnIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id IN ?", txnIDs).
		Update("order_group_id", groupID).Error
}

func (r *repository) SetGroupPaymentIntent(ctx context.Context, groupID int64, intentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderGroup{}).
		Where("id = ?", groupID).
		Update("payment_intent_id", intentID).Error
}

func (r *repository) SetTransactionPaymentIntent(ctx context.Context, txnID int64, intentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", txnID).
		Update("payment_intent_id", intentID).Error
}

func (r *repository) FindGroup(ctx context.Context, groupID int64) (*models.OrderGroup, error) {
	var group models.OrderGroup
	if err := r.db.WithContext(ctx).Where("id = ?", groupID).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) FindGroupByIntent(ctx context.Context, intentID string) (*models.OrderGroup, error) {
	var group models.OrderGroup
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", intentID).
		Order("id DESC").
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) FindOrdersByIntent(ctx context.Context, intentID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("payment_intent_id = ?", intentID).
		Order("id ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) FindOrdersByGroup(ctx context.Context, groupID int64) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("order_group_id = ?", groupID).
		Order("id ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) FindTransaction(ctx context.Context, txnID int64) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", txnID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindTransactionByIntent(ctx context.Context, intentID string, isFiat bool) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ? AND is_fiat = ?", intentID, isFiat).
		Order("id DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindTransactionsByGroup(ctx context.Context, groupID int64) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_group_id = ?", groupID).
		Order("id ASC").
		Find(&txns).Error
	return txns, err
}

func (r *repository) FindTransfersByGroup(ctx context.Context, groupID int64) ([]models.PaymentTransfer, error) {
	var transfers []models.PaymentTransfer
	err := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = payment_transfers.order_id").
		Where("orders.order_group_id = ?", groupID).
		Order("payment_transfers.id ASC").
		Find(&transfers).Error
	return transfers, err
}

// FindOrphanedTransactions lists created legs older than cutoff that never
// got an order group or a payment intent. Nothing can look them up by intent
// id, so no later step will ever settle them.
func (r *repository) FindOrphanedTransactions(ctx context.Context, cutoff time.Time) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PaymentTransactionStatusCreated, cutoff.UTC()).
		Where("order_group_id IS NULL OR payment_intent_id IS NULL").
		Order("id ASC").
		Find(&txns).Error
	return txns, err
}

// CompleteGroup is the settlement gate: it only moves a CREATED group and
// reports whether this call did so.
func (r *repository) CompleteGroup(ctx context.Context, groupID int64, code string, completedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderGroup{}).
		Where("id = ? AND status = ?", groupID, enums.OrderGroupStatusCreated).
		Updates(map[string]any{
			"status":       enums.OrderGroupStatusCompleted,
			"code":         code,
			"completed_at": completedAt.UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CompleteOrder(ctx context.Context, orderID int64, code string, completedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusCreated).
		Updates(map[string]any{
			"status":       enums.OrderStatusCompleted,
			"code":         code,
			"completed_at": completedAt.UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

// TransitionTransaction applies updates only while the leg is still in from.
func (r *repository) TransitionTransaction(ctx context.Context, txnID int64, from, to enums.PaymentTransactionStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", txnID, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

// IsNotFound reports whether err is a missing-row error from this repository.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
