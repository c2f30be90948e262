package provisioner

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
	"github.com/smallbiznis/learnway/internal/courseware/domain"
	coursewarerepo "github.com/smallbiznis/learnway/internal/courseware/repository"
	orgdomain "github.com/smallbiznis/learnway/internal/organization/domain"
	orgrepo "github.com/smallbiznis/learnway/internal/organization/repository"
	productdomain "github.com/smallbiznis/learnway/internal/product/domain"
	productrepo "github.com/smallbiznis/learnway/internal/product/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type provisionerEnv struct {
	db          *gorm.DB
	node        *snowflake.Node
	provisioner *Provisioner
	courseware  domain.Repository
	products    productdomain.Repository
	org         orgdomain.Organization
}

func setupProvisioner(t *testing.T) *provisionerEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&contractdomain.Contract{},
		&domain.Course{},
		&domain.CourseRun{},
		&domain.Program{},
		&domain.ProgramCourse{},
		&productdomain.Product{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	orgs := orgrepo.NewRepository(db)
	org := orgdomain.Organization{
		ID:     node.Generate(),
		Name:   "ACME",
		OrgKey: "ACMEx",
		Slug:   "acme",
	}
	require.NoError(t, orgs.Create(context.Background(), org))

	env := &provisionerEnv{
		db:         db,
		node:       node,
		courseware: coursewarerepo.NewRepository(db),
		products:   productrepo.NewRepository(db),
		org:        org,
	}
	env.provisioner = New(ProvisionerParam{
		Log:        zap.NewNop(),
		DB:         db,
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Cfg:        config.NewStaticB2BConfigHolder(config.DefaultB2BConfig()),
		Courseware: env.courseware,
		Products:   env.products,
		Orgs:       orgs,
	})
	return env
}

func (e *provisionerEnv) seedCourse(t *testing.T, code string, withSource bool) domain.Course {
	t.Helper()
	course := domain.Course{
		ID:         e.node.Generate(),
		Code:       code,
		Title:      "Intro to " + code,
		ReadableID: fmt.Sprintf("acme-%s-%d", code, e.node.Generate()),
	}
	require.NoError(t, e.db.Create(&course).Error)
	if withSource {
		source := domain.CourseRun{
			ID:           e.node.Generate(),
			CourseID:     course.ID,
			CoursewareID: fmt.Sprintf("course-v1:ACMEx+%s+SOURCE%d", code, course.ID),
			RunTag:       "SOURCE",
			Title:        course.Title,
			ReadableID:   course.ReadableID + "-source",
			IsSource:     true,
		}
		require.NoError(t, e.db.Create(&source).Error)
	}
	return course
}

func (e *provisionerEnv) seedContract(t *testing.T, price *int64) contractdomain.Contract {
	t.Helper()
	contract := contractdomain.Contract{
		ID:              e.node.Generate(),
		OrgID:           e.org.ID,
		Name:            "ACME Deal",
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		FixedPriceCents: price,
	}
	contract.Slug = contract.ID.String()
	contract.DeriveMembershipType()
	require.NoError(t, e.db.Create(&contract).Error)
	return contract
}

func TestCreateContractRun(t *testing.T) {
	env := setupProvisioner(t)
	ctx := context.Background()

	price := int64(12000)
	contract := env.seedContract(t, &price)
	course := env.seedCourse(t, "CS101", true)

	run, err := env.provisioner.CreateContractRun(ctx, contract, course.ID)
	require.NoError(t, err)

	wantTag := fmt.Sprintf("R%d-2026", contract.ID)
	require.Equal(t, wantTag, run.RunTag)
	require.Equal(t, fmt.Sprintf("course-v1:ACMEx+CS101+%s", wantTag), run.CoursewareID)
	require.NotNil(t, run.ContractID)
	require.Equal(t, contract.ID, *run.ContractID)
	require.NotNil(t, run.StartAt)

	// Fixed regardless of how the source run is configured: self-paced,
	// certificate available from the start date.
	require.True(t, run.SelfPaced)
	require.NotNil(t, run.CertificateAvailableAt)
	require.Equal(t, *run.StartAt, *run.CertificateAvailableAt)

	product, err := env.products.GetActiveByRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, product)
	require.Equal(t, int64(12000), product.PriceCents)
	require.Contains(t, product.Description, env.org.Name)
	require.Contains(t, product.Description, course.Title)
	require.Contains(t, product.Description, course.ReadableID)
}

func TestCreateContractRunDuplicate(t *testing.T) {
	env := setupProvisioner(t)
	ctx := context.Background()

	contract := env.seedContract(t, nil)
	course := env.seedCourse(t, "CS101", true)

	_, err := env.provisioner.CreateContractRun(ctx, contract, course.ID)
	require.NoError(t, err)

	_, err = env.provisioner.CreateContractRun(ctx, contract, course.ID)
	require.ErrorIs(t, err, ErrTargetCourseRunExists)
}

func TestCreateContractRunMissingSource(t *testing.T) {
	env := setupProvisioner(t)
	ctx := context.Background()

	contract := env.seedContract(t, nil)
	course := env.seedCourse(t, "CS102", false)

	_, err := env.provisioner.CreateContractRun(ctx, contract, course.ID)
	require.ErrorIs(t, err, ErrSourceRunMissing)
}

func TestCreateContractRunUnknownCourse(t *testing.T) {
	env := setupProvisioner(t)

	contract := env.seedContract(t, nil)
	_, err := env.provisioner.CreateContractRun(context.Background(), contract, env.node.Generate())
	require.ErrorIs(t, err, ErrCourseNotFound)
}

func TestAddProgramCoursesSkipsProvisioned(t *testing.T) {
	env := setupProvisioner(t)
	ctx := context.Background()

	contract := env.seedContract(t, nil)
	courseA := env.seedCourse(t, "CS101", true)
	courseB := env.seedCourse(t, "CS102", true)

	program := domain.Program{
		ID:         env.node.Generate(),
		Title:      "Data Track",
		ReadableID: fmt.Sprintf("data-track-%d", env.node.Generate()),
	}
	require.NoError(t, env.db.Create(&program).Error)
	for i, course := range []domain.Course{courseA, courseB} {
		require.NoError(t, env.db.Create(&domain.ProgramCourse{
			ID:        env.node.Generate(),
			ProgramID: program.ID,
			CourseID:  course.ID,
			Position:  i,
		}).Error)
	}

	_, err := env.provisioner.CreateContractRun(ctx, contract, courseA.ID)
	require.NoError(t, err)

	added, skipped, err := env.provisioner.AddProgramCourses(ctx, contract, program.ID)
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.Equal(t, 1, skipped)

	// Rerun is fully idempotent.
	added, skipped, err = env.provisioner.AddProgramCourses(ctx, contract, program.ID)
	require.NoError(t, err)
	require.Zero(t, added)
	require.Equal(t, 2, skipped)
}

func TestRemoveContractRun(t *testing.T) {
	env := setupProvisioner(t)
	ctx := context.Background()

	contract := env.seedContract(t, nil)
	course := env.seedCourse(t, "CS101", true)

	run, err := env.provisioner.CreateContractRun(ctx, contract, course.ID)
	require.NoError(t, err)

	require.NoError(t, env.provisioner.RemoveContractRun(ctx, contract, course.ID))

	gone, err := env.courseware.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	product, err := env.products.GetActiveByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Nil(t, product)

	// The source run is untouched.
	source, err := env.courseware.GetSourceRun(ctx, course.ID)
	require.NoError(t, err)
	require.NotNil(t, source)

	// Removing again is a no-op.
	require.NoError(t, env.provisioner.RemoveContractRun(ctx, contract, course.ID))
}
