package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateContractRequest) (*Contract, error)
	Modify(ctx context.Context, contractID snowflake.ID, req ModifyContractRequest) (*Contract, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Contract, error)
	GetBySlug(ctx context.Context, slug string) (*Contract, error)
	Resolve(ctx context.Context, ref string) (*Contract, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Contract, error)
	ListAll(ctx context.Context) ([]Contract, error)
	ListAllPage(ctx context.Context, page pagination.Pagination) ([]Contract, *pagination.PageInfo, error)
	IsOverfull(ctx context.Context, contract Contract) (bool, error)
}

type CreateContractRequest struct {
	OrgID           snowflake.ID
	Name            string
	Description     string
	IntegrationType IntegrationType
	StartAt         *time.Time
	EndAt           *time.Time
	MaxLearners     *int
	FixedPriceCents *int64
}

// ModifyContractRequest uses pointer fields so callers can distinguish
// "leave alone" from "set" and "clear".
type ModifyContractRequest struct {
	StartAt          *time.Time
	EndAt            *time.Time
	Active           *bool
	MaxLearners      *int
	FixedPriceCents  *int64
	ClearStartAt     bool
	ClearEndAt       bool
	ClearMaxLearners bool
	ClearFixedPrice  bool
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidIntegration = errors.New("invalid_integration_type")
	ErrInvalidWindow      = errors.New("invalid_contract_window")
	ErrContractNotFound   = errors.New("contract_not_found")
)
