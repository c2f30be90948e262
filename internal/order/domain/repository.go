package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order Order, lines []OrderLine) error
	GetByID(ctx context.Context, id snowflake.ID) (*Order, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]Order, error)
	ListLines(ctx context.Context, orderID snowflake.ID) ([]OrderLine, error)
	HasFulfilledProduct(ctx context.Context, userID, productID snowflake.ID) (bool, error)
}
