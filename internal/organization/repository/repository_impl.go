package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/organization/domain"
	"github.com/smallbiznis/learnway/pkg/db"
	"github.com/smallbiznis/learnway/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Create(&org).Error
}

func (r *repository) Update(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET name = ?, description = ?, logo_url = ?, sso_organization_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		org.Name,
		org.Description,
		org.LogoURL,
		org.SSOOrgID,
		org.ID,
	).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return r.getOne(ctx, `slug = ?`, slug)
}

func (r *repository) GetByOrgKey(ctx context.Context, orgKey string) (*domain.Organization, error) {
	return r.getOne(ctx, `org_key = ?`, orgKey)
}

func (r *repository) GetBySSOOrgID(ctx context.Context, ssoOrgID string) (*domain.Organization, error) {
	return r.getOne(ctx, `sso_organization_id = ?`, ssoOrgID)
}

func (r *repository) List(ctx context.Context) ([]domain.Organization, error) {
	var orgs []domain.Organization
	err := r.db.WithContext(ctx).Order("id ASC").Find(&orgs).Error
	return orgs, err
}

// ListPage returns one cursor page of organizations in id order. The
// token encodes the last id of the previous page.
func (r *repository) ListPage(ctx context.Context, page pagination.Pagination) ([]domain.Organization, *pagination.PageInfo, error) {
	limit := page.PageSize
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("id ASC").Limit(limit + 1)
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		after, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, err
		}
		q = q.Where("id > ?", after)
	}

	var orgs []domain.Organization
	if err := q.Find(&orgs).Error; err != nil {
		return nil, nil, err
	}

	refs := make([]*domain.Organization, len(orgs))
	for i := range orgs {
		refs[i] = &orgs[i]
	}
	info := pagination.BuildCursorPageInfo(refs, limit, func(org *domain.Organization) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: org.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(orgs) > limit {
		orgs = orgs[:limit]
	}
	return orgs, info, nil
}

func (r *repository) ListMemberships(ctx context.Context, userID snowflake.ID) ([]domain.UserOrganization, error) {
	var memberships []domain.UserOrganization
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&memberships).Error
	return memberships, err
}

func (r *repository) AddMembership(ctx context.Context, membership domain.UserOrganization) error {
	err := r.db.WithContext(ctx).Create(&membership).Error
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// PinMembership upserts the membership with keep_until_seen set. An
// existing (org, user) row keeps its identity and gains the pin.
func (r *repository) PinMembership(ctx context.Context, membership domain.UserOrganization) error {
	membership.KeepUntilSeen = true
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{"keep_until_seen": true}),
	}).Create(&membership).Error
}

func (r *repository) RemoveMembership(ctx context.Context, orgID, userID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM user_organizations WHERE org_id = ? AND user_id = ?`,
		orgID,
		userID,
	).Error
}

func (r *repository) HasMembership(ctx context.Context, orgID, userID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.UserOrganization{}).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) getOne(ctx context.Context, query string, arg any) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Where(query, arg).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}
