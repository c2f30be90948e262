package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/learnway/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	Resolve(ctx context.Context, ref string) (*Organization, error)
	List(ctx context.Context) ([]Organization, error)
	ListPage(ctx context.Context, page pagination.Pagination) ([]Organization, *pagination.PageInfo, error)
}

// CreateOrganizationRequest carries the admin-supplied fields.
type CreateOrganizationRequest struct {
	Name        string
	OrgKey      string
	Description string
	LogoURL     string
	SSOOrgID    string
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidOrgKey       = errors.New("invalid_org_key")
	ErrOrganizationExists  = errors.New("organization_exists")
	ErrOrganizationUnknown = errors.New("organization_not_found")
)
