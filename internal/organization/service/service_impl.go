package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/learnway/internal/organization/domain"
	"github.com/smallbiznis/learnway/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:   p.Log.Named("organization.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	orgKey := strings.TrimSpace(req.OrgKey)
	if orgKey == "" {
		orgKey = slug.Make(name)
	}
	// Org keys end up as a segment of generated courseware ids, which
	// cannot contain "+" or whitespace.
	if strings.ContainsAny(orgKey, "+ \t") {
		return nil, domain.ErrInvalidOrgKey
	}

	if existing, err := s.repo.GetByOrgKey(ctx, orgKey); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.ErrOrganizationExists
	}

	org := domain.Organization{
		ID:          s.genID.Generate(),
		OrgKey:      orgKey,
		Name:        name,
		Slug:        slug.Make(name),
		Description: strings.TrimSpace(req.Description),
		LogoURL:     strings.TrimSpace(req.LogoURL),
	}
	if ssoID := strings.TrimSpace(req.SSOOrgID); ssoID != "" {
		org.SSOOrgID = &ssoID
	}

	if err := s.repo.Create(ctx, org); err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("org_key", org.OrgKey),
	)
	return &org, nil
}

func (s *Service) GetBySlug(ctx context.Context, slugRef string) (*domain.Organization, error) {
	org, err := s.repo.GetBySlug(ctx, strings.TrimSpace(slugRef))
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationUnknown
	}
	return org, nil
}

// Resolve accepts an id, a slug, or an SSO UUID, in that order of
// precedence. Operator commands use it so --organization takes any form.
func (s *Service) Resolve(ctx context.Context, ref string) (*domain.Organization, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrOrganizationUnknown
	}

	if id, err := snowflake.ParseString(ref); err == nil {
		if org, err := s.repo.GetByID(ctx, id); err != nil {
			return nil, err
		} else if org != nil {
			return org, nil
		}
	}

	if org, err := s.repo.GetBySlug(ctx, ref); err != nil {
		return nil, err
	} else if org != nil {
		return org, nil
	}

	org, err := s.repo.GetBySSOOrgID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationUnknown
	}
	return org, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Organization, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListPage(ctx context.Context, page pagination.Pagination) ([]domain.Organization, *pagination.PageInfo, error) {
	return s.repo.ListPage(ctx, page)
}
