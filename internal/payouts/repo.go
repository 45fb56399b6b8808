package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// Repository persists payout_transactions rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockShop(ctx context.Context, shopID uuid.UUID) error
	Create(ctx context.Context, row *models.PayoutTransaction) error
	FindLatestByShop(ctx context.Context, shopID uuid.UUID) (*models.PayoutTransaction, error)
	FindByGatewayID(ctx context.Context, gatewayPayoutID string) (*models.PayoutTransaction, error)
	Transition(ctx context.Context, id int64, from, to enums.PayoutStatus, updates map[string]any) (bool, error)
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

func (r *repository) Create(ctx context.Context, row *models.PayoutTransaction) error {
	if row.Status == "" {
		row.Status = enums.PayoutStatusCreated
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// LockShop holds the shop row until the transaction ends so payout requests
// for one shop run one at a time.
func (r *repository) LockShop(ctx context.Context, shopID uuid.UUID) error {
	var shop models.Shop
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", shopID).
		First(&shop).Error
}

// FindLatestByShop returns nil when the shop never requested a payout.
func (r *repository) FindLatestByShop(ctx context.Context, shopID uuid.UUID) (*models.PayoutTransaction, error) {
	var row models.PayoutTransaction
	err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByGatewayID(ctx context.Context, gatewayPayoutID string) (*models.PayoutTransaction, error) {
	var row models.PayoutTransaction
	if err := r.db.WithContext(ctx).Where("stripe_payout_id = ?", gatewayPayoutID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Transition moves a payout only while it is still in from.
func (r *repository) Transition(ctx context.Context, id int64, from, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.PayoutTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}
