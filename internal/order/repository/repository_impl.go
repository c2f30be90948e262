package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/order/domain"
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

func (r *repository) Create(ctx context.Context, order domain.Order, lines []domain.OrderLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		return tx.Create(&lines).Error
	})
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) ListLines(ctx context.Context, orderID snowflake.ID) ([]domain.OrderLine, error) {
	var lines []domain.OrderLine
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

// HasFulfilledProduct reports whether a user already bought a product.
// Refunded orders do not count; the user may buy again.
func (r *repository) HasFulfilledProduct(ctx context.Context, userID, productID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM order_lines ol
		 JOIN orders o ON o.id = ol.order_id
		 WHERE o.user_id = ? AND ol.product_id = ? AND o.status = ?`,
		userID,
		productID,
		domain.StatusFulfilled,
	).Scan(&count).Error
	return count > 0, err
}
