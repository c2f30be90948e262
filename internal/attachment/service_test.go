package attachment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/learnway/internal/clock"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	contractrepo "github.com/smallbiznis/learnway/internal/contract/repository"
	coursewarerepo "github.com/smallbiznis/learnway/internal/courseware/repository"
	discountdomain "github.com/smallbiznis/learnway/internal/discount/domain"
	discountrepo "github.com/smallbiznis/learnway/internal/discount/repository"
	orgdomain "github.com/smallbiznis/learnway/internal/organization/domain"
	orgrepo "github.com/smallbiznis/learnway/internal/organization/repository"
	productdomain "github.com/smallbiznis/learnway/internal/product/domain"
	productrepo "github.com/smallbiznis/learnway/internal/product/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type attachmentEnv struct {
	db        *gorm.DB
	node      *snowflake.Node
	service   *Service
	orgs      orgdomain.Repository
	contracts contractdomain.Repository
	discounts discountdomain.Repository
}

func setupAttachment(t *testing.T) *attachmentEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.UserOrganization{},
		&contractdomain.Contract{},
		&contractdomain.ContractLearner{},
		&discountdomain.Discount{},
		&discountdomain.DiscountProduct{},
		&discountdomain.DiscountRedemption{},
		&discountdomain.ContractAttachmentRedemption{},
		&productdomain.Product{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	env := &attachmentEnv{
		db:        db,
		node:      node,
		orgs:      orgrepo.NewRepository(db),
		contracts: contractrepo.NewRepository(db),
		discounts: discountrepo.NewRepository(db),
	}
	env.service = NewService(ServiceParam{
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Orgs:       env.orgs,
		Contracts:  env.contracts,
		Discounts:  env.discounts,
		Products:   productrepo.NewRepository(db),
		Courseware: coursewarerepo.NewRepository(db),
	})
	return env
}

func (e *attachmentEnv) seedOrg(t *testing.T, ssoOrgID string) orgdomain.Organization {
	t.Helper()
	org := orgdomain.Organization{
		ID:     e.node.Generate(),
		Name:   "ACME",
		OrgKey: fmt.Sprintf("acme-%d", e.node.Generate()),
	}
	org.Slug = org.OrgKey
	if ssoOrgID != "" {
		org.SSOOrgID = &ssoOrgID
	}
	require.NoError(t, e.orgs.Create(context.Background(), org))
	return org
}

func (e *attachmentEnv) seedContract(t *testing.T, org orgdomain.Organization, integration contractdomain.IntegrationType) contractdomain.Contract {
	t.Helper()
	contract := contractdomain.Contract{
		ID:              e.node.Generate(),
		OrgID:           org.ID,
		Name:            "ACME Deal",
		IntegrationType: integration,
		Active:          true,
		AutoAttach:      true,
	}
	contract.Slug = contract.ID.String()
	contract.DeriveMembershipType()
	require.NoError(t, e.contracts.Create(context.Background(), contract))
	return contract
}

func (e *attachmentEnv) seedCode(t *testing.T, contract contractdomain.Contract, policy discountdomain.Policy) discountdomain.Discount {
	t.Helper()
	code := discountdomain.Discount{
		ID:              e.node.Generate(),
		Code:            fmt.Sprintf("code-%d", e.node.Generate()),
		Kind:            discountdomain.KindFixedPrice,
		Policy:          policy,
		PaymentCategory: discountdomain.PaymentCategoryEnrollmentCode,
		ContractID:      &contract.ID,
	}
	require.NoError(t, e.discounts.Create(context.Background(), code))
	return code
}

func TestNeedsReconcile(t *testing.T) {
	env := setupAttachment(t)
	ctx := context.Background()
	userID := env.node.Generate()

	orgA := env.seedOrg(t, "11111111-1111-1111-1111-111111111111")
	env.seedOrg(t, "22222222-2222-2222-2222-222222222222")

	needs, err := env.service.NeedsReconcile(ctx, userID, []string{*orgA.SSOOrgID})
	require.NoError(t, err)
	require.True(t, needs)

	require.NoError(t, env.orgs.AddMembership(ctx, orgdomain.UserOrganization{
		ID:     env.node.Generate(),
		OrgID:  orgA.ID,
		UserID: userID,
	}))

	needs, err = env.service.NeedsReconcile(ctx, userID, []string{*orgA.SSOOrgID})
	require.NoError(t, err)
	require.False(t, needs)
}

func TestReconcileUserOrgsAddsAndRemoves(t *testing.T) {
	env := setupAttachment(t)
	ctx := context.Background()
	userID := env.node.Generate()

	orgA := env.seedOrg(t, "11111111-1111-1111-1111-111111111111")
	orgB := env.seedOrg(t, "22222222-2222-2222-2222-222222222222")
	orgC := env.seedOrg(t, "33333333-3333-3333-3333-333333333333")
	contractB := env.seedContract(t, orgB, contractdomain.IntegrationSSO)

	// Previous state: member of A and C. Payload says A and B.
	require.NoError(t, env.orgs.AddMembership(ctx, orgdomain.UserOrganization{
		ID: env.node.Generate(), OrgID: orgA.ID, UserID: userID,
	}))
	require.NoError(t, env.orgs.AddMembership(ctx, orgdomain.UserOrganization{
		ID: env.node.Generate(), OrgID: orgC.ID, UserID: userID,
	}))

	err := env.service.ReconcileUserOrgs(ctx, userID, []string{*orgA.SSOOrgID, *orgB.SSOOrgID})
	require.NoError(t, err)

	hasA, err := env.orgs.HasMembership(ctx, orgA.ID, userID)
	require.NoError(t, err)
	require.True(t, hasA)
	hasB, err := env.orgs.HasMembership(ctx, orgB.ID, userID)
	require.NoError(t, err)
	require.True(t, hasB)
	hasC, err := env.orgs.HasMembership(ctx, orgC.ID, userID)
	require.NoError(t, err)
	require.False(t, hasC)

	// Joining B fanned out to its auto-attach contract.
	attached, err := env.contracts.HasLearner(ctx, contractB.ID, userID)
	require.NoError(t, err)
	require.True(t, attached)
}

func TestReconcileUserOrgsKeepsPinnedMemberships(t *testing.T) {
	env := setupAttachment(t)
	ctx := context.Background()
	userID := env.node.Generate()

	orgA := env.seedOrg(t, "11111111-1111-1111-1111-111111111111")
	pinned := env.seedOrg(t, "22222222-2222-2222-2222-222222222222")

	require.NoError(t, env.orgs.AddMembership(ctx, orgdomain.UserOrganization{
		ID:            env.node.Generate(),
		OrgID:         pinned.ID,
		UserID:        userID,
		KeepUntilSeen: true,
	}))

	err := env.service.ReconcileUserOrgs(ctx, userID, []string{*orgA.SSOOrgID})
	require.NoError(t, err)

	// Absent from the payload but pinned, so it survives.
	has, err := env.orgs.HasMembership(ctx, pinned.ID, userID)
	require.NoError(t, err)
	require.True(t, has)
}

func TestReconcileUserOrgsIgnoresUnknownOrg(t *testing.T) {
	env := setupAttachment(t)
	ctx := context.Background()
	userID := env.node.Generate()

	err := env.service.ReconcileUserOrgs(ctx, userID, []string{"99999999-9999-9999-9999-999999999999"})
	require.NoError(t, err)

	memberships, err := env.orgs.ListMemberships(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, memberships)
}

func TestAttachUserViaCode(t *testing.T) {
	env := setupAttachment(t)
	ctx := context.Background()
	userID := env.node.Generate()

	org := env.seedOrg(t, "11111111-1111-1111-1111-111111111111")
	contract := env.seedContract(t, org, contractdomain.IntegrationSSO)
	code := env.seedCode(t, contract, discountdomain.PolicyUnlimited)

	attached, err := env.service.AttachUserViaCode(ctx, userID, code.Code)
	require.NoError(t, err)
	require.Equal(t, contract.ID, attached.ID)

	has, err := env.contracts.HasLearner(ctx, contract.ID, userID)
	require.NoError(t, err)
	require.True(t, has)

	// SSO contract attachment pins the membership for the next payload.
	memberships, err := env.orgs.ListMemberships(ctx, userID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	require.True(t, memberships[0].KeepUntilSeen)

	// Redeeming again is a no-op, not an error.
	again, err := env.service.AttachUserViaCode(ctx, userID, code.Code)
	require.NoError(t, err)
	require.Equal(t, contract.ID, again.ID)

	learners, err := env.contracts.ListLearners(ctx, contract.ID)
	require.NoError(t, err)
	require.Len(t, learners, 1)
}

func TestAttachUserViaCodeWithExistingMembership(t *testing.T) {
	env := setupAttachment(t)
	ctx := context.Background()
	userID := env.node.Generate()

	org := env.seedOrg(t, "11111111-1111-1111-1111-111111111111")
	contract := env.seedContract(t, org, contractdomain.IntegrationSSO)
	code := env.seedCode(t, contract, discountdomain.PolicyUnlimited)

	// The user already belongs to the org from a payload reconcile.
	require.NoError(t, env.orgs.AddMembership(ctx, orgdomain.UserOrganization{
		ID:     env.node.Generate(),
		OrgID:  org.ID,
		UserID: userID,
	}))

	attached, err := env.service.AttachUserViaCode(ctx, userID, code.Code)
	require.NoError(t, err)
	require.Equal(t, contract.ID, attached.ID)

	// One membership, now pinned.
	memberships, err := env.orgs.ListMemberships(ctx, userID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	require.True(t, memberships[0].KeepUntilSeen)

	has, err := env.contracts.HasLearner(ctx, contract.ID, userID)
	require.NoError(t, err)
	require.True(t, has)
}

func TestNeedsReconcileSkipsPinnedUnseenMembership(t *testing.T) {
	env := setupAttachment(t)
	ctx := context.Background()
	userID := env.node.Generate()

	orgA := env.seedOrg(t, "11111111-1111-1111-1111-111111111111")
	pinned := env.seedOrg(t, "22222222-2222-2222-2222-222222222222")

	require.NoError(t, env.orgs.AddMembership(ctx, orgdomain.UserOrganization{
		ID: env.node.Generate(), OrgID: orgA.ID, UserID: userID,
	}))
	require.NoError(t, env.orgs.AddMembership(ctx, orgdomain.UserOrganization{
		ID:            env.node.Generate(),
		OrgID:         pinned.ID,
		UserID:        userID,
		KeepUntilSeen: true,
	}))

	// The pinned org never shows up in the payload; the debounce still
	// sees matching sets and skips.
	needs, err := env.service.NeedsReconcile(ctx, userID, []string{*orgA.SSOOrgID})
	require.NoError(t, err)
	require.False(t, needs)

	// Once the payload reports it, the pinned org counts as stored.
	needs, err = env.service.NeedsReconcile(ctx, userID, []string{*orgA.SSOOrgID, *pinned.SSOOrgID})
	require.NoError(t, err)
	require.False(t, needs)
}

func TestAttachUserViaCodeRejectsSeatLimitedCode(t *testing.T) {
	env := setupAttachment(t)
	ctx := context.Background()

	org := env.seedOrg(t, "")
	contract := env.seedContract(t, org, contractdomain.IntegrationNonSSO)
	code := env.seedCode(t, contract, discountdomain.PolicyOneTime)

	_, err := env.service.AttachUserViaCode(ctx, env.node.Generate(), code.Code)
	require.ErrorIs(t, err, ErrCodeNotUnlimited)
}

func TestAttachUserViaCodeRejectsInactiveContract(t *testing.T) {
	env := setupAttachment(t)
	ctx := context.Background()

	org := env.seedOrg(t, "")
	contract := env.seedContract(t, org, contractdomain.IntegrationNonSSO)
	code := env.seedCode(t, contract, discountdomain.PolicyUnlimited)

	contract.Active = false
	require.NoError(t, env.contracts.Save(ctx, contract))

	_, err := env.service.AttachUserViaCode(ctx, env.node.Generate(), code.Code)
	require.ErrorIs(t, err, ErrContractInactive)
}

func TestAttachUserViaCodeUnknownCode(t *testing.T) {
	env := setupAttachment(t)

	_, err := env.service.AttachUserViaCode(context.Background(), env.node.Generate(), "nope")
	require.ErrorIs(t, err, ErrCodeNotFound)
}
