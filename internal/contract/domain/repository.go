package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contract Contract) error
	Save(ctx context.Context, contract Contract) error
	GetByID(ctx context.Context, id snowflake.ID) (*Contract, error)
	GetBySlug(ctx context.Context, slug string) (*Contract, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Contract, error)
	ListAll(ctx context.Context) ([]Contract, error)
	ListAllPage(ctx context.Context, page pagination.Pagination) ([]Contract, *pagination.PageInfo, error)
	ListAutoAttachByOrg(ctx context.Context, orgID snowflake.ID) ([]Contract, error)

	// LockByID takes a row lock on the contract so concurrent
	// reconciles serialize. No-op on dialects without FOR UPDATE.
	LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) error

	CountLearners(ctx context.Context, contractID snowflake.ID) (int64, error)
	AddLearner(ctx context.Context, learner ContractLearner) error
	RemoveLearner(ctx context.Context, contractID, userID snowflake.ID) error
	HasLearner(ctx context.Context, contractID, userID snowflake.ID) (bool, error)
	ListLearners(ctx context.Context, contractID snowflake.ID) ([]ContractLearner, error)

	LinkProgram(ctx context.Context, link ContractProgram) error
	ListPrograms(ctx context.Context, contractID snowflake.ID) ([]ContractProgram, error)
}
