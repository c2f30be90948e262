package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/learnway/internal/contract/domain"
	"github.com/smallbiznis/learnway/internal/scheduler/queue"
	"github.com/smallbiznis/learnway/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	queue *queue.Queue
}

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Queue *queue.Queue
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:   p.Log.Named("contract.service"),
		genID: p.GenID,
		repo:  p.Repo,
		queue: p.Queue,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateContractRequest) (*domain.Contract, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	switch req.IntegrationType {
	case domain.IntegrationSSO, domain.IntegrationNonSSO:
	default:
		return nil, domain.ErrInvalidIntegration
	}
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return nil, domain.ErrInvalidWindow
	}

	contract := domain.Contract{
		ID:              s.genID.Generate(),
		OrgID:           req.OrgID,
		Name:            name,
		Slug:            slug.Make(name),
		Description:     strings.TrimSpace(req.Description),
		IntegrationType: req.IntegrationType,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		Active:          true,
		MaxLearners:     req.MaxLearners,
		FixedPriceCents: req.FixedPriceCents,
		AutoAttach:      true,
	}
	contract.DeriveMembershipType()

	if err := s.repo.Create(ctx, contract); err != nil {
		return nil, err
	}

	s.log.Info("contract created",
		zap.String("contract_id", contract.ID.String()),
		zap.String("org_id", contract.OrgID.String()),
		zap.String("integration_type", string(contract.IntegrationType)),
	)

	// Every contract save schedules a code check.
	if err := s.queue.EnqueueContractCodes(ctx, contract.ID); err != nil {
		return nil, err
	}
	return &contract, nil
}

func (s *Service) Modify(ctx context.Context, contractID snowflake.ID, req domain.ModifyContractRequest) (*domain.Contract, error) {
	contract, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, domain.ErrContractNotFound
	}

	if req.StartAt != nil {
		contract.StartAt = req.StartAt
	}
	if req.ClearStartAt {
		contract.StartAt = nil
	}
	if req.EndAt != nil {
		contract.EndAt = req.EndAt
	}
	if req.ClearEndAt {
		contract.EndAt = nil
	}
	if req.Active != nil {
		contract.Active = *req.Active
	}
	if req.MaxLearners != nil {
		contract.MaxLearners = req.MaxLearners
	}
	if req.ClearMaxLearners {
		contract.MaxLearners = nil
	}
	if req.FixedPriceCents != nil {
		contract.FixedPriceCents = req.FixedPriceCents
	}
	if req.ClearFixedPrice {
		contract.FixedPriceCents = nil
	}
	if contract.StartAt != nil && contract.EndAt != nil && contract.EndAt.Before(*contract.StartAt) {
		return nil, domain.ErrInvalidWindow
	}
	contract.DeriveMembershipType()

	if err := s.repo.Save(ctx, *contract); err != nil {
		return nil, err
	}

	s.log.Info("contract modified", zap.String("contract_id", contract.ID.String()))

	if err := s.queue.EnqueueContractCodes(ctx, contract.ID); err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Contract, error) {
	contract, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, domain.ErrContractNotFound
	}
	return contract, nil
}

func (s *Service) GetBySlug(ctx context.Context, slugRef string) (*domain.Contract, error) {
	contract, err := s.repo.GetBySlug(ctx, strings.TrimSpace(slugRef))
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, domain.ErrContractNotFound
	}
	return contract, nil
}

// Resolve accepts a contract id or slug.
func (s *Service) Resolve(ctx context.Context, ref string) (*domain.Contract, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrContractNotFound
	}
	if id, err := snowflake.ParseString(ref); err == nil {
		if contract, err := s.repo.GetByID(ctx, id); err != nil {
			return nil, err
		} else if contract != nil {
			return contract, nil
		}
	}
	return s.GetBySlug(ctx, ref)
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]domain.Contract, error) {
	return s.repo.List(ctx, orgID)
}

func (s *Service) ListAll(ctx context.Context) ([]domain.Contract, error) {
	return s.repo.ListAll(ctx)
}

func (s *Service) ListAllPage(ctx context.Context, page pagination.Pagination) ([]domain.Contract, *pagination.PageInfo, error) {
	return s.repo.ListAllPage(ctx, page)
}

// IsOverfull reports whether the learner count exceeds the seat cap.
func (s *Service) IsOverfull(ctx context.Context, contract domain.Contract) (bool, error) {
	limit, capped := contract.SeatLimit()
	if !capped {
		return false, nil
	}
	count, err := s.repo.CountLearners(ctx, contract.ID)
	if err != nil {
		return false, err
	}
	if count > int64(limit) {
		s.log.Warn("contract overfull",
			zap.String("contract_id", contract.ID.String()),
			zap.Int64("learners", count),
			zap.Int("max_learners", limit),
		)
		return true, nil
	}
	return false, nil
}
