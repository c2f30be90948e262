package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, org Organization) error
	Update(ctx context.Context, org Organization) error
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	GetByOrgKey(ctx context.Context, orgKey string) (*Organization, error)
	GetBySSOOrgID(ctx context.Context, ssoOrgID string) (*Organization, error)
	List(ctx context.Context) ([]Organization, error)
	ListPage(ctx context.Context, page pagination.Pagination) ([]Organization, *pagination.PageInfo, error)

	ListMemberships(ctx context.Context, userID snowflake.ID) ([]UserOrganization, error)
	AddMembership(ctx context.Context, membership UserOrganization) error
	PinMembership(ctx context.Context, membership UserOrganization) error
	RemoveMembership(ctx context.Context, orgID, userID snowflake.ID) error
	HasMembership(ctx context.Context, orgID, userID snowflake.ID) (bool, error)
}
