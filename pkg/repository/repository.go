// Package repository provides a small generic gorm store for lookups
// that do not warrant a hand-written repository method.
package repository

import (
	"context"

	"gorm.io/gorm"
)

// QueryOption mutates the statement before execution.
type QueryOption func(*gorm.DB) *gorm.DB

func WithOrder(order string) QueryOption {
	return func(stmt *gorm.DB) *gorm.DB { return stmt.Order(order) }
}

func WithLimit(limit int) QueryOption {
	return func(stmt *gorm.DB) *gorm.DB { return stmt.Limit(limit) }
}

func WithWhere(query string, args ...any) QueryOption {
	return func(stmt *gorm.DB) *gorm.DB { return stmt.Where(query, args...) }
}

type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
	Update(ctx context.Context, resourceID int64, resource any) error
	Delete(ctx context.Context, resourceID int64) error
	Count(ctx context.Context, query *T) (int64, error)
}
