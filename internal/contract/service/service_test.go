package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/learnway/internal/contract/domain"
	"github.com/smallbiznis/learnway/internal/contract/repository"
	"github.com/smallbiznis/learnway/internal/scheduler/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contractEnv struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  domain.Service
	repo domain.Repository
}

func setupContractService(t *testing.T) *contractEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&domain.Contract{},
		&domain.ContractLearner{},
		&domain.ContractProgram{},
		&queue.ReconcileJob{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.NewRepository(db)
	svc := NewService(ServiceParam{
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
		Queue: queue.New(db, node),
	})
	return &contractEnv{db: db, node: node, svc: svc, repo: repo}
}

func (e *contractEnv) jobCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&queue.ReconcileJob{}).Count(&count).Error)
	return count
}

func TestCreateContract(t *testing.T) {
	env := setupContractService(t)
	ctx := context.Background()

	limit := 10
	contract, err := env.svc.Create(ctx, domain.CreateContractRequest{
		OrgID:           env.node.Generate(),
		Name:            "ACME Annual Deal",
		IntegrationType: domain.IntegrationNonSSO,
		MaxLearners:     &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-annual-deal", contract.Slug)
	assert.True(t, contract.Active)
	assert.True(t, contract.AutoAttach)
	assert.Equal(t, domain.MembershipManaged, contract.MembershipType)

	// Saving the contract schedules a code check.
	require.Equal(t, int64(1), env.jobCount(t))
}

func TestCreateContractValidation(t *testing.T) {
	env := setupContractService(t)
	ctx := context.Background()
	orgID := env.node.Generate()

	_, err := env.svc.Create(ctx, domain.CreateContractRequest{
		OrgID:           orgID,
		Name:            "   ",
		IntegrationType: domain.IntegrationNonSSO,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = env.svc.Create(ctx, domain.CreateContractRequest{
		OrgID:           orgID,
		Name:            "Deal",
		IntegrationType: domain.IntegrationType("carrier-pigeon"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidIntegration)

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = env.svc.Create(ctx, domain.CreateContractRequest{
		OrgID:           orgID,
		Name:            "Deal",
		IntegrationType: domain.IntegrationNonSSO,
		StartAt:         &start,
		EndAt:           &end,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestModifyContract(t *testing.T) {
	env := setupContractService(t)
	ctx := context.Background()

	limit := 5
	created, err := env.svc.Create(ctx, domain.CreateContractRequest{
		OrgID:           env.node.Generate(),
		Name:            "ACME Deal",
		IntegrationType: domain.IntegrationNonSSO,
		MaxLearners:     &limit,
	})
	require.NoError(t, err)

	price := int64(9900)
	inactive := false
	modified, err := env.svc.Modify(ctx, created.ID, domain.ModifyContractRequest{
		Active:           &inactive,
		FixedPriceCents:  &price,
		ClearMaxLearners: true,
	})
	require.NoError(t, err)
	assert.False(t, modified.Active)
	assert.Nil(t, modified.MaxLearners)
	require.NotNil(t, modified.FixedPriceCents)
	assert.Equal(t, int64(9900), *modified.FixedPriceCents)

	// Create and modify enqueue on the same (kind, ref) key, so the
	// jobs collapse into one.
	require.Equal(t, int64(1), env.jobCount(t))
}

func TestModifyContractUnknown(t *testing.T) {
	env := setupContractService(t)

	_, err := env.svc.Modify(context.Background(), env.node.Generate(), domain.ModifyContractRequest{})
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestResolveByIDAndSlug(t *testing.T) {
	env := setupContractService(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, domain.CreateContractRequest{
		OrgID:           env.node.Generate(),
		Name:            "Globex Pilot",
		IntegrationType: domain.IntegrationSSO,
	})
	require.NoError(t, err)

	byID, err := env.svc.Resolve(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, byID.ID)

	bySlug, err := env.svc.Resolve(ctx, "globex-pilot")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	_, err = env.svc.Resolve(ctx, "no-such-contract")
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestIsOverfull(t *testing.T) {
	env := setupContractService(t)
	ctx := context.Background()

	limit := 1
	contract, err := env.svc.Create(ctx, domain.CreateContractRequest{
		OrgID:           env.node.Generate(),
		Name:            "Tight Deal",
		IntegrationType: domain.IntegrationNonSSO,
		MaxLearners:     &limit,
	})
	require.NoError(t, err)

	overfull, err := env.svc.IsOverfull(ctx, *contract)
	require.NoError(t, err)
	assert.False(t, overfull)

	for i := 0; i < 2; i++ {
		require.NoError(t, env.repo.AddLearner(ctx, domain.ContractLearner{
			ID:         env.node.Generate(),
			ContractID: contract.ID,
			UserID:     env.node.Generate(),
		}))
	}

	overfull, err = env.svc.IsOverfull(ctx, *contract)
	require.NoError(t, err)
	assert.True(t, overfull)

	// No cap means never overfull.
	uncapped, err := env.svc.Create(ctx, domain.CreateContractRequest{
		OrgID:           env.node.Generate(),
		Name:            "Open Deal",
		IntegrationType: domain.IntegrationNonSSO,
	})
	require.NoError(t, err)
	overfull, err = env.svc.IsOverfull(ctx, *uncapped)
	require.NoError(t, err)
	assert.False(t, overfull)
}
