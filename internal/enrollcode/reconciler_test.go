package enrollcode

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/learnway/internal/clock"
	"github.com/smallbiznis/learnway/internal/config"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	contractrepo "github.com/smallbiznis/learnway/internal/contract/repository"
	coursewaredomain "github.com/smallbiznis/learnway/internal/courseware/domain"
	coursewarerepo "github.com/smallbiznis/learnway/internal/courseware/repository"
	discountdomain "github.com/smallbiznis/learnway/internal/discount/domain"
	discountrepo "github.com/smallbiznis/learnway/internal/discount/repository"
	productdomain "github.com/smallbiznis/learnway/internal/product/domain"
	productrepo "github.com/smallbiznis/learnway/internal/product/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type reconcilerEnv struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	reconciler *Reconciler
	contracts  contractdomain.Repository
	discounts  discountdomain.Repository
	products   productdomain.Repository
}

func setupReconciler(t *testing.T) *reconcilerEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&contractdomain.Contract{},
		&contractdomain.ContractLearner{},
		&coursewaredomain.Course{},
		&coursewaredomain.CourseRun{},
		&productdomain.Product{},
		&discountdomain.Discount{},
		&discountdomain.DiscountProduct{},
		&discountdomain.DiscountRedemption{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	contracts := contractrepo.NewRepository(db)
	courseware := coursewarerepo.NewRepository(db)
	products := productrepo.NewRepository(db)
	discounts := discountrepo.NewRepository(db)

	env := &reconcilerEnv{
		db:        db,
		node:      node,
		clock:     clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		contracts: contracts,
		discounts: discounts,
		products:  products,
	}
	env.reconciler = New(ReconcilerParam{
		Log:        zap.NewNop(),
		DB:         db,
		GenID:      node,
		Clock:      env.clock,
		Cfg:        config.NewStaticB2BConfigHolder(config.DefaultB2BConfig()),
		Contracts:  contracts,
		Courseware: courseware,
		Products:   products,
		Discounts:  discounts,
	})
	return env
}

// seedContract stores a contract with one contract-scoped run and an
// active product at the contract price.
func (e *reconcilerEnv) seedContract(t *testing.T, contract contractdomain.Contract) (contractdomain.Contract, productdomain.Product) {
	t.Helper()
	ctx := context.Background()

	contract.ID = e.node.Generate()
	contract.OrgID = e.node.Generate()
	if contract.Name == "" {
		contract.Name = "ACME Deal"
	}
	contract.Slug = contract.ID.String()
	contract.DeriveMembershipType()
	require.NoError(t, e.contracts.Create(ctx, contract))

	course := coursewaredomain.Course{
		ID:         e.node.Generate(),
		Code:       "CS101",
		Title:      "Intro",
		ReadableID: "acme-cs101-" + contract.ID.String(),
	}
	require.NoError(t, e.db.Create(&course).Error)

	run := coursewaredomain.CourseRun{
		ID:           e.node.Generate(),
		CourseID:     course.ID,
		ContractID:   &contract.ID,
		CoursewareID: "course-v1:acme+CS101+R" + contract.ID.String(),
		RunTag:       "R" + contract.ID.String(),
		Title:        course.Title,
		ReadableID:   course.ReadableID + "-run",
	}
	require.NoError(t, e.db.Create(&run).Error)

	price := int64(0)
	if cents, ok := contract.PriceCents(); ok {
		price = cents
	}
	product := productdomain.Product{
		ID:          e.node.Generate(),
		CourseRunID: run.ID,
		PriceCents:  price,
		Description: course.Title,
		Active:      true,
	}
	require.NoError(t, e.products.Create(ctx, product))
	return contract, product
}

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }

func TestEnsureCodesSeatCappedFreeContract(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(2),
	})

	result, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, Result{Created: 2}, result)

	codes, err := env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	for _, code := range codes {
		require.Equal(t, discountdomain.PolicyOneTime, code.Policy)
		require.Equal(t, discountdomain.KindFixedPrice, code.Kind)
		require.Equal(t, int64(0), code.Amount)
		require.Equal(t, discountdomain.PaymentCategoryEnrollmentCode, code.PaymentCategory)
		require.True(t, code.IsBulk)
		require.NotNil(t, code.ContractID)
		require.Equal(t, contract.ID, *code.ContractID)
	}

	// A second pass finds nothing to do.
	again, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, Result{}, again)
}

func TestEnsureCodesUnlimitedPricedContract(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		FixedPriceCents: int64p(9900),
	})

	result, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, Result{Created: 1}, result)

	codes, err := env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	require.Equal(t, discountdomain.PolicyUnlimited, codes[0].Policy)
	require.Equal(t, discountdomain.KindFixedPrice, codes[0].Kind)
	require.Equal(t, int64(9900), codes[0].Amount)
	require.False(t, codes[0].IsBulk)
}

func TestEnsureCodesRewritesOnCapRemoval(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(3),
	})

	first, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, 3, first.Created)

	contract.MaxLearners = nil
	require.NoError(t, env.contracts.Save(ctx, contract))

	// Target shrinks to a single unlimited code. The three existing codes
	// are rewritten in place; the surplus is flagged, never deleted.
	second, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, Result{Updated: 3, Errors: 1}, second)

	codes, err := env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, codes, 3)
	for _, code := range codes {
		require.Equal(t, discountdomain.PolicyUnlimited, code.Policy)
		require.False(t, code.IsBulk)
	}
}

func TestEnsureCodesSSOFreeTeardown(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(2),
	})
	_, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)

	contract.IntegrationType = contractdomain.IntegrationSSO
	contract.DeriveMembershipType()
	require.NoError(t, env.contracts.Save(ctx, contract))

	result, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, Result{Updated: 2}, result)

	codes, err := env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Empty(t, codes)

	remaining, err := env.discounts.ListByContract(ctx, contract.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)

	// Pricing an SSO contract puts it back on the code-carrying side of
	// the table. With the seat cap gone the target is one unlimited
	// fixed-price code.
	contract.MaxLearners = nil
	contract.FixedPriceCents = int64p(10000)
	require.NoError(t, env.contracts.Save(ctx, contract))

	priced, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, Result{Created: 1}, priced)

	codes, err = env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	require.Equal(t, discountdomain.PolicyUnlimited, codes[0].Policy)
	require.Equal(t, int64(10000), codes[0].Amount)
}

func TestEnsureCodesSSOPricedKeepsSeatCap(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	// A priced SSO contract with a seat cap still mints one-time codes,
	// one per seat.
	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationSSO,
		Active:          true,
		MaxLearners:     intp(2),
		FixedPriceCents: int64p(10000),
	})

	result, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, Result{Created: 2}, result)

	codes, err := env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	for _, code := range codes {
		require.Equal(t, discountdomain.PolicyOneTime, code.Policy)
		require.Equal(t, int64(10000), code.Amount)
		require.True(t, code.IsBulk)
	}
}

func TestTeardownKeepsRedeemedCodes(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(2),
	})
	_, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)

	codes, err := env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	redeemed := codes[0]
	require.NoError(t, env.discounts.CreateRedemption(ctx, discountdomain.DiscountRedemption{
		ID:         env.node.Generate(),
		DiscountID: redeemed.ID,
		UserID:     env.node.Generate(),
		OrderID:    env.node.Generate(),
	}))

	contract.IntegrationType = contractdomain.IntegrationSSO
	contract.DeriveMembershipType()
	require.NoError(t, env.contracts.Save(ctx, contract))

	_, err = env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)

	// The redeemed code loses its product link but keeps its history.
	kept, err := env.discounts.GetByID(ctx, redeemed.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)

	gone, err := env.discounts.GetByID(ctx, codes[1].ID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestEnsureCodesUnknownContract(t *testing.T) {
	env := setupReconciler(t)

	_, err := env.reconciler.EnsureEnrollmentCodesExist(context.Background(), env.node.Generate())
	require.ErrorIs(t, err, ErrContractNotFound)
}
