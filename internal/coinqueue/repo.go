package coinqueue

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// Repository persists coin_action_queues rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.CoinActionQueue) error
	FindCreated(ctx context.Context, limit int) ([]models.CoinActionQueue, error)
	Transition(ctx context.Context, id int64, from, to enums.CoinActionStatus, updates map[string]any) (bool, error)
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

func (r *repository) Create(ctx context.Context, row *models.CoinActionQueue) error {
	if row.Status == "" {
		row.Status = enums.CoinActionStatusCreated
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// FindCreated returns the oldest CREATED rows. Rows that are not due yet or
// carry an unsupported action stay CREATED and still count toward limit, so
// enough of them ahead of a due row keep it out of the batch.
func (r *repository) FindCreated(ctx context.Context, limit int) ([]models.CoinActionQueue, error) {
	var rows []models.CoinActionQueue
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.CoinActionStatusCreated).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Transition moves a row only while it is still in from.
func (r *repository) Transition(ctx context.Context, id int64, from, to enums.CoinActionStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.CoinActionQueue{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}
