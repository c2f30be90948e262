package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, basket Basket) error
	GetByID(ctx context.Context, id snowflake.ID) (*Basket, error)
	GetOpenByUser(ctx context.Context, userID snowflake.ID) (*Basket, error)
	SetStatus(ctx context.Context, id snowflake.ID, status Status) error

	AddItem(ctx context.Context, item BasketItem) error
	ClearItems(ctx context.Context, basketID snowflake.ID) error
	ListItems(ctx context.Context, basketID snowflake.ID) ([]BasketItem, error)

	AttachDiscount(ctx context.Context, link BasketDiscount) error
	ClearDiscounts(ctx context.Context, basketID snowflake.ID) error
	ListDiscounts(ctx context.Context, basketID snowflake.ID) ([]BasketDiscount, error)
}
