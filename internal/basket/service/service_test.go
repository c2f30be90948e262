package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	basketdomain "github.com/smallbiznis/learnway/internal/basket/domain"
	basketrepo "github.com/smallbiznis/learnway/internal/basket/repository"
	"github.com/smallbiznis/learnway/internal/clock"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	contractrepo "github.com/smallbiznis/learnway/internal/contract/repository"
	coursewaredomain "github.com/smallbiznis/learnway/internal/courseware/domain"
	coursewarerepo "github.com/smallbiznis/learnway/internal/courseware/repository"
	discountdomain "github.com/smallbiznis/learnway/internal/discount/domain"
	discountrepo "github.com/smallbiznis/learnway/internal/discount/repository"
	enrollmentdomain "github.com/smallbiznis/learnway/internal/enrollment/domain"
	enrollmentrepo "github.com/smallbiznis/learnway/internal/enrollment/repository"
	orderdomain "github.com/smallbiznis/learnway/internal/order/domain"
	orderrepo "github.com/smallbiznis/learnway/internal/order/repository"
	productdomain "github.com/smallbiznis/learnway/internal/product/domain"
	productrepo "github.com/smallbiznis/learnway/internal/product/repository"
	userdomain "github.com/smallbiznis/learnway/internal/user/domain"
	userrepo "github.com/smallbiznis/learnway/internal/user/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type basketEnv struct {
	db          *gorm.DB
	node        *snowflake.Node
	clock       *clock.FakeClock
	service     *Service
	baskets     basketdomain.Repository
	contracts   contractdomain.Repository
	discounts   discountdomain.Repository
	products    productdomain.Repository
	orders      orderdomain.Repository
	enrollments enrollmentdomain.Repository
	users       userdomain.Repository
}

func setupBasketService(t *testing.T) *basketEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&contractdomain.Contract{},
		&contractdomain.ContractLearner{},
		&coursewaredomain.Course{},
		&coursewaredomain.CourseRun{},
		&coursewaredomain.Program{},
		&coursewaredomain.ProgramCourse{},
		&coursewaredomain.CourseCountryBlock{},
		&productdomain.Product{},
		&discountdomain.Discount{},
		&discountdomain.DiscountProduct{},
		&discountdomain.DiscountRedemption{},
		&orderdomain.Order{},
		&orderdomain.OrderLine{},
		&basketdomain.Basket{},
		&basketdomain.BasketItem{},
		&basketdomain.BasketDiscount{},
		&enrollmentdomain.CourseRunEnrollment{},
		&enrollmentdomain.ProgramEnrollment{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	env := &basketEnv{
		db:          db,
		node:        node,
		clock:       clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		baskets:     basketrepo.NewRepository(db),
		contracts:   contractrepo.NewRepository(db),
		discounts:   discountrepo.NewRepository(db),
		products:    productrepo.NewRepository(db),
		orders:      orderrepo.NewRepository(db),
		enrollments: enrollmentrepo.NewRepository(db),
		users:       userrepo.NewRepository(db),
	}
	env.service = NewService(ServiceParam{
		Log:         zap.NewNop(),
		DB:          db,
		GenID:       node,
		Clock:       env.clock,
		Baskets:     env.baskets,
		Contracts:   env.contracts,
		Courseware:  coursewarerepo.NewRepository(db),
		Products:    env.products,
		Discounts:   env.discounts,
		Orders:      env.orders,
		Enrollments: env.enrollments,
		Users:       env.users,
	})
	return env
}

type fixture struct {
	user     userdomain.User
	contract contractdomain.Contract
	course   coursewaredomain.Course
	run      coursewaredomain.CourseRun
	product  productdomain.Product
	code     discountdomain.Discount
}

// seedFixture builds a user, an active free seat-capped contract with
// one run and product, and one valid enrollment code linked to it.
func (e *basketEnv) seedFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	user := userdomain.User{
		ID:          e.node.Generate(),
		Email:       fmt.Sprintf("learner-%d@example.com", e.node.Generate()),
		Name:        "Learner",
		CountryCode: "DE",
	}
	require.NoError(t, e.db.Create(&user).Error)

	contract := contractdomain.Contract{
		ID:              e.node.Generate(),
		OrgID:           e.node.Generate(),
		Name:            "ACME Deal",
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
	}
	contract.Slug = contract.ID.String()
	contract.DeriveMembershipType()
	require.NoError(t, e.contracts.Create(ctx, contract))

	course := coursewaredomain.Course{
		ID:         e.node.Generate(),
		Code:       "CS101",
		Title:      "Intro",
		ReadableID: fmt.Sprintf("acme-cs101-%d", contract.ID),
	}
	require.NoError(t, e.db.Create(&course).Error)

	run := coursewaredomain.CourseRun{
		ID:           e.node.Generate(),
		CourseID:     course.ID,
		ContractID:   &contract.ID,
		CoursewareID: fmt.Sprintf("course-v1:acme+CS101+R%d", contract.ID),
		RunTag:       fmt.Sprintf("R%d", contract.ID),
		Title:        course.Title,
		ReadableID:   course.ReadableID + "-run",
	}
	require.NoError(t, e.db.Create(&run).Error)

	product := productdomain.Product{
		ID:          e.node.Generate(),
		CourseRunID: run.ID,
		PriceCents:  0,
		Description: course.Title,
		Active:      true,
	}
	require.NoError(t, e.products.Create(ctx, product))

	code := discountdomain.Discount{
		ID:              e.node.Generate(),
		Code:            fmt.Sprintf("code-%d", e.node.Generate()),
		Kind:            discountdomain.KindFixedPrice,
		Amount:          0,
		Policy:          discountdomain.PolicyOneTime,
		PaymentCategory: discountdomain.PaymentCategoryEnrollmentCode,
		ContractID:      &contract.ID,
		IsBulk:          true,
	}
	require.NoError(t, e.discounts.Create(ctx, code))
	require.NoError(t, e.discounts.LinkProduct(ctx, discountdomain.DiscountProduct{
		ID:         e.node.Generate(),
		DiscountID: code.ID,
		ProductID:  product.ID,
	}))

	return fixture{user: user, contract: contract, course: course, run: run, product: product, code: code}
}

func (e *basketEnv) openBasketWith(t *testing.T, userID snowflake.ID, items ...fixture) basketdomain.Basket {
	t.Helper()
	ctx := context.Background()

	basket := basketdomain.Basket{
		ID:     e.node.Generate(),
		UserID: userID,
		Status: basketdomain.StatusOpen,
	}
	require.NoError(t, e.baskets.Create(ctx, basket))
	for _, fx := range items {
		require.NoError(t, e.baskets.AddItem(ctx, basketdomain.BasketItem{
			ID:        e.node.Generate(),
			BasketID:  basket.ID,
			ProductID: fx.product.ID,
		}))
	}
	return basket
}

func TestValidateForB2BPurchaseCoverage(t *testing.T) {
	env := setupBasketService(t)
	ctx := context.Background()
	fx := env.seedFixture(t)

	basket := env.openBasketWith(t, fx.user.ID, fx)

	// A B2B item without its code fails validation.
	ok, err := env.service.ValidateForB2BPurchase(ctx, basket.ID, fx.user.ID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, env.baskets.AttachDiscount(ctx, basketdomain.BasketDiscount{
		ID:         env.node.Generate(),
		BasketID:   basket.ID,
		DiscountID: fx.code.ID,
	}))
	ok, err = env.service.ValidateForB2BPurchase(ctx, basket.ID, fx.user.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Adding a second contract's item without a second code flips the
	// basket back to invalid.
	other := env.seedFixture(t)
	require.NoError(t, env.baskets.AddItem(ctx, basketdomain.BasketItem{
		ID:        env.node.Generate(),
		BasketID:  basket.ID,
		ProductID: other.product.ID,
	}))
	ok, err = env.service.ValidateForB2BPurchase(ctx, basket.ID, fx.user.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidateSkipsInactiveContracts(t *testing.T) {
	env := setupBasketService(t)
	ctx := context.Background()
	fx := env.seedFixture(t)

	fx.contract.Active = false
	require.NoError(t, env.contracts.Save(ctx, fx.contract))

	// Deactivated contract items drop out of the coverage rule, so the
	// basket passes without any code.
	basket := env.openBasketWith(t, fx.user.ID, fx)
	ok, err := env.service.ValidateForB2BPurchase(ctx, basket.ID, fx.user.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestValidateRejectsConsumedOneTimeCode(t *testing.T) {
	env := setupBasketService(t)
	ctx := context.Background()
	fx := env.seedFixture(t)

	require.NoError(t, env.discounts.CreateRedemption(ctx, discountdomain.DiscountRedemption{
		ID:         env.node.Generate(),
		DiscountID: fx.code.ID,
		UserID:     env.node.Generate(),
		OrderID:    env.node.Generate(),
	}))

	basket := env.openBasketWith(t, fx.user.ID, fx)
	require.NoError(t, env.baskets.AttachDiscount(ctx, basketdomain.BasketDiscount{
		ID:         env.node.Generate(),
		BasketID:   basket.ID,
		DiscountID: fx.code.ID,
	}))

	ok, err := env.service.ValidateForB2BPurchase(ctx, basket.ID, fx.user.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHasDuplicatePurchase(t *testing.T) {
	env := setupBasketService(t)
	ctx := context.Background()
	fx := env.seedFixture(t)

	basket := env.openBasketWith(t, fx.user.ID, fx)

	dup, err := env.service.HasDuplicatePurchase(ctx, basket.ID, fx.user.ID)
	require.NoError(t, err)
	require.False(t, dup)

	order := orderdomain.Order{
		ID:     env.node.Generate(),
		UserID: fx.user.ID,
		Status: orderdomain.StatusFulfilled,
	}
	require.NoError(t, env.orders.Create(ctx, order, []orderdomain.OrderLine{{
		ID:        env.node.Generate(),
		OrderID:   order.ID,
		ProductID: fx.product.ID,
	}}))

	dup, err = env.service.HasDuplicatePurchase(ctx, basket.ID, fx.user.ID)
	require.NoError(t, err)
	require.True(t, dup)
}

func TestIsCountryBlockedForUser(t *testing.T) {
	env := setupBasketService(t)
	ctx := context.Background()
	fx := env.seedFixture(t)

	basket := env.openBasketWith(t, fx.user.ID, fx)

	blocked, err := env.service.IsCountryBlockedForUser(ctx, basket.ID, fx.user)
	require.NoError(t, err)
	require.False(t, blocked)

	require.NoError(t, env.db.Create(&coursewaredomain.CourseCountryBlock{
		ID:          env.node.Generate(),
		CourseID:    fx.course.ID,
		CountryCode: "DE",
	}).Error)

	blocked, err = env.service.IsCountryBlockedForUser(ctx, basket.ID, fx.user)
	require.NoError(t, err)
	require.True(t, blocked)
}

func TestTotalAppliesBestDiscount(t *testing.T) {
	env := setupBasketService(t)
	ctx := context.Background()
	fx := env.seedFixture(t)

	require.NoError(t, env.products.UpdatePrice(ctx, fx.product.ID, 10000))

	basket := env.openBasketWith(t, fx.user.ID, fx)
	total, err := env.service.Total(ctx, basket.ID, fx.user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10000), total)

	require.NoError(t, env.baskets.AttachDiscount(ctx, basketdomain.BasketDiscount{
		ID:         env.node.Generate(),
		BasketID:   basket.ID,
		DiscountID: fx.code.ID,
	}))
	total, err = env.service.Total(ctx, basket.ID, fx.user.ID)
	require.NoError(t, err)
	require.Zero(t, total)
}
