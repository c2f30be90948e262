package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/basket/domain"
	"github.com/smallbiznis/learnway/pkg/db"
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

func (r *repository) Create(ctx context.Context, basket domain.Basket) error {
	return r.db.WithContext(ctx).Create(&basket).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Basket, error) {
	var basket domain.Basket
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&basket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &basket, nil
}

func (r *repository) GetOpenByUser(ctx context.Context, userID snowflake.ID) (*domain.Basket, error) {
	var basket domain.Basket
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.StatusOpen).
		Order("id DESC").
		First(&basket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &basket, nil
}

func (r *repository) SetStatus(ctx context.Context, id snowflake.ID, status domain.Status) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE baskets SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repository) AddItem(ctx context.Context, item domain.BasketItem) error {
	err := r.db.WithContext(ctx).Create(&item).Error
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repository) ClearItems(ctx context.Context, basketID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM basket_items WHERE basket_id = ?`, basketID,
	).Error
}

func (r *repository) ListItems(ctx context.Context, basketID snowflake.ID) ([]domain.BasketItem, error) {
	var items []domain.BasketItem
	err := r.db.WithContext(ctx).
		Where("basket_id = ?", basketID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) AttachDiscount(ctx context.Context, link domain.BasketDiscount) error {
	err := r.db.WithContext(ctx).Create(&link).Error
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repository) ClearDiscounts(ctx context.Context, basketID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM basket_discounts WHERE basket_id = ?`, basketID,
	).Error
}

func (r *repository) ListDiscounts(ctx context.Context, basketID snowflake.ID) ([]domain.BasketDiscount, error) {
	var links []domain.BasketDiscount
	err := r.db.WithContext(ctx).
		Where("basket_id = ?", basketID).
		Order("id ASC").
		Find(&links).Error
	return links, err
}
