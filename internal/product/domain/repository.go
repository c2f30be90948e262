package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, product Product) error
	GetByID(ctx context.Context, id snowflake.ID) (*Product, error)
	GetActiveByRun(ctx context.Context, runID snowflake.ID) (*Product, error)
	ListActiveByRuns(ctx context.Context, runIDs []snowflake.ID) ([]Product, error)
	UpdatePrice(ctx context.Context, id snowflake.ID, priceCents int64) error
	Deactivate(ctx context.Context, id snowflake.ID) error
}
