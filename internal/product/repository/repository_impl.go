package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/product/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) domain.Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, product domain.Product) error {
	return r.db.WithContext(ctx).Create(&product).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *repository) GetActiveByRun(ctx context.Context, runID snowflake.ID) (*domain.Product, error) {
	return r.getOne(ctx, `course_run_id = ? AND active`, runID)
}

// ListActiveByRuns returns products in primary-key order. Downstream
// code pairs codes to products positionally, so the order must be
// stable.
func (r *repository) ListActiveByRuns(ctx context.Context, runIDs []snowflake.ID) ([]domain.Product, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}
	var products []domain.Product
	err := r.db.WithContext(ctx).
		Where("course_run_id IN ? AND active", runIDs).
		Order("id ASC").
		Find(&products).Error
	return products, err
}

func (r *repository) UpdatePrice(ctx context.Context, id snowflake.ID, priceCents int64) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE products SET price_cents = ?, updated_at = ? WHERE id = ?`,
		priceCents,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repository) Deactivate(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE products SET active = FALSE, updated_at = ? WHERE id = ?`,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repository) getOne(ctx context.Context, query string, arg any) (*domain.Product, error) {
	var product domain.Product
	err := r.db.WithContext(ctx).Where(query, arg).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}
