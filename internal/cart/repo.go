package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
)

// CatalogRepository loads the catalog rows a checkout is priced from.
type CatalogRepository interface {
	WithTx(tx *gorm.DB) CatalogRepository
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	FindParameterSets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ParameterSet, error)
	FindSessionTickets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.SessionTicket, error)
	FindShops(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Shop, error)
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) WithTx(tx *gorm.DB) CatalogRepository {
	if tx == nil {
		return r
	}
	return &catalogRepository{db: tx}
}

func (r *catalogRepository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *catalogRepository) FindParameterSets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ParameterSet, error) {
	out := make(map[uuid.UUID]models.ParameterSet, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ParameterSet
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindSessionTickets preloads the owning experience for shop resolution.
func (r *catalogRepository) FindSessionTickets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.SessionTicket, error) {
	out := make(map[uuid.UUID]models.SessionTicket, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.SessionTicket
	if err := r.db.WithContext(ctx).Preload("Experience").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *catalogRepository) FindShops(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Shop, error) {
	out := make(map[uuid.UUID]models.Shop, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Shop
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}
