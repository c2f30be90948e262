// Package attachment connects users to organizations and contracts,
// either from the SSO payload or by redeeming an unlimited enrollment
// code.
package attachment

import (
	"context"
	"errors"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/clock"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	coursewaredomain "github.com/smallbiznis/learnway/internal/courseware/domain"
	discountdomain "github.com/smallbiznis/learnway/internal/discount/domain"
	obsmetrics "github.com/smallbiznis/learnway/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/learnway/internal/organization/domain"
	productdomain "github.com/smallbiznis/learnway/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrCodeNotFound     = errors.New("code_not_found")
	ErrCodeInvalid      = errors.New("code_invalid")
	ErrCodeNotUnlimited = errors.New("code_not_unlimited")
	ErrContractInactive = errors.New("contract_inactive")
	ErrNoContractLinked = errors.New("no_contract_linked")
)

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	metrics    *obsmetrics.Metrics
	orgs       orgdomain.Repository
	contracts  contractdomain.Repository
	discounts  discountdomain.Repository
	products   productdomain.Repository
	courseware coursewaredomain.Repository
}

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Metrics    *obsmetrics.Metrics `optional:"true"`
	Orgs       orgdomain.Repository
	Contracts  contractdomain.Repository
	Discounts  discountdomain.Repository
	Products   productdomain.Repository
	Courseware coursewaredomain.Repository
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:        p.Log.Named("attachment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		metrics:    p.Metrics,
		orgs:       p.Orgs,
		contracts:  p.Contracts,
		discounts:  p.Discounts,
		products:   p.Products,
		courseware: p.Courseware,
	}
}

// NeedsReconcile compares the SSO payload's organization UUIDs with the
// user's stored memberships. A matching set skips the job entirely.
func (s *Service) NeedsReconcile(ctx context.Context, userID snowflake.ID, orgUUIDs []string) (bool, error) {
	memberships, err := s.orgs.ListMemberships(ctx, userID)
	if err != nil {
		return false, err
	}
	incoming := append([]string(nil), orgUUIDs...)
	sort.Strings(incoming)
	seen := make(map[string]bool, len(incoming))
	for _, uuid := range incoming {
		seen[uuid] = true
	}

	stored := make([]string, 0, len(memberships))
	for _, m := range memberships {
		org, err := s.orgs.GetByID(ctx, m.OrgID)
		if err != nil {
			return false, err
		}
		if org == nil || org.SSOOrgID == nil {
			continue
		}
		// A pinned membership the payload has never reported would
		// otherwise defeat the debounce on every login.
		if m.KeepUntilSeen && !seen[*org.SSOOrgID] {
			continue
		}
		stored = append(stored, *org.SSOOrgID)
	}
	sort.Strings(stored)
	if len(incoming) != len(stored) {
		return true, nil
	}
	for i := range incoming {
		if incoming[i] != stored[i] {
			return true, nil
		}
	}
	return false, nil
}

// ReconcileUserOrgs makes the user's memberships mirror the SSO
// payload. Memberships flagged keep_until_seen survive absence from the
// payload; everything else is added or removed, fanning out to the
// auto-attach contracts of each affected organization.
func (s *Service) ReconcileUserOrgs(ctx context.Context, userID snowflake.ID, orgUUIDs []string) error {
	desired := make(map[snowflake.ID]bool)
	for _, uuid := range orgUUIDs {
		org, err := s.orgs.GetBySSOOrgID(ctx, uuid)
		if err != nil {
			return err
		}
		if org == nil {
			// Unknown org: discovered later by the org sync job.
			s.log.Warn("sso payload references unknown organization",
				zap.String("user_id", userID.String()),
				zap.String("sso_org_id", uuid),
			)
			continue
		}
		desired[org.ID] = true
	}

	memberships, err := s.orgs.ListMemberships(ctx, userID)
	if err != nil {
		return err
	}
	current := make(map[snowflake.ID]orgdomain.UserOrganization, len(memberships))
	for _, m := range memberships {
		current[m.OrgID] = m
	}

	for orgID := range desired {
		if _, ok := current[orgID]; ok {
			continue
		}
		if err := s.orgs.AddMembership(ctx, orgdomain.UserOrganization{
			ID:     s.genID.Generate(),
			OrgID:  orgID,
			UserID: userID,
		}); err != nil {
			return err
		}
		if err := s.addUserContracts(ctx, orgID, userID); err != nil {
			return err
		}
		s.metrics.RecordAttachment(ctx, "sso")
	}

	for orgID, membership := range current {
		if desired[orgID] {
			continue
		}
		if membership.KeepUntilSeen {
			continue
		}
		if err := s.orgs.RemoveMembership(ctx, orgID, userID); err != nil {
			return err
		}
		if err := s.removeUserContracts(ctx, orgID, userID); err != nil {
			return err
		}
	}

	s.log.Info("user orgs reconciled",
		zap.String("user_id", userID.String()),
		zap.Int("desired", len(desired)),
		zap.Int("previous", len(current)),
	)
	return nil
}

func (s *Service) addUserContracts(ctx context.Context, orgID, userID snowflake.ID) error {
	contracts, err := s.contracts.ListAutoAttachByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	for _, contract := range contracts {
		if err := s.contracts.AddLearner(ctx, contractdomain.ContractLearner{
			ID:         s.genID.Generate(),
			ContractID: contract.ID,
			UserID:     userID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) removeUserContracts(ctx context.Context, orgID, userID snowflake.ID) error {
	contracts, err := s.contracts.ListAutoAttachByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	for _, contract := range contracts {
		if err := s.contracts.RemoveLearner(ctx, contract.ID, userID); err != nil {
			return err
		}
	}
	return nil
}

// AttachUserViaCode redeems an unlimited-policy code for contract
// membership. For SSO contracts the organization membership is pinned
// with keep_until_seen so the next payload reconcile leaves it alone.
func (s *Service) AttachUserViaCode(ctx context.Context, userID snowflake.ID, code string) (*contractdomain.Contract, error) {
	discount, err := s.discounts.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if discount == nil {
		return nil, ErrCodeNotFound
	}
	if !discount.ValidNow(s.clock.Now()) {
		return nil, ErrCodeInvalid
	}
	if discount.Policy != discountdomain.PolicyUnlimited {
		return nil, ErrCodeNotUnlimited
	}

	contract, err := s.contractForDiscount(ctx, *discount)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, ErrNoContractLinked
	}
	if !contract.IsActive(s.clock.Now()) {
		return nil, ErrContractInactive
	}

	already, err := s.discounts.HasAttachmentRedemption(ctx, contract.ID, userID)
	if err != nil {
		return nil, err
	}
	if already {
		return contract, nil
	}

	if err := s.discounts.CreateAttachmentRedemption(ctx, discountdomain.ContractAttachmentRedemption{
		ID:         s.genID.Generate(),
		DiscountID: discount.ID,
		ContractID: contract.ID,
		UserID:     userID,
	}); err != nil {
		return nil, err
	}
	if err := s.contracts.AddLearner(ctx, contractdomain.ContractLearner{
		ID:         s.genID.Generate(),
		ContractID: contract.ID,
		UserID:     userID,
	}); err != nil {
		return nil, err
	}

	if contract.IntegrationType == contractdomain.IntegrationSSO {
		// The user may already hold the membership from an earlier
		// payload reconcile or another contract of the same org.
		if err := s.orgs.PinMembership(ctx, orgdomain.UserOrganization{
			ID:     s.genID.Generate(),
			OrgID:  contract.OrgID,
			UserID: userID,
		}); err != nil {
			return nil, err
		}
	}

	s.metrics.RecordAttachment(ctx, "code")
	s.log.Info("user attached via code",
		zap.String("user_id", userID.String()),
		zap.String("contract_id", contract.ID.String()),
		zap.String("code", discount.Code),
	)
	return contract, nil
}

// contractForDiscount resolves the owning contract, preferring the
// denormalized back-reference and falling back to the product links.
func (s *Service) contractForDiscount(ctx context.Context, discount discountdomain.Discount) (*contractdomain.Contract, error) {
	if discount.ContractID != nil {
		return s.contracts.GetByID(ctx, *discount.ContractID)
	}
	links, err := s.discounts.ListProductLinks(ctx, discount.ID)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		product, err := s.products.GetByID(ctx, link.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			continue
		}
		run, err := s.courseware.GetRun(ctx, product.CourseRunID)
		if err != nil {
			return nil, err
		}
		if run == nil || run.ContractID == nil {
			continue
		}
		return s.contracts.GetByID(ctx, *run.ContractID)
	}
	return nil, nil
}
