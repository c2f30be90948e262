// Package provisioner creates contract-scoped course runs. Each
// contract gets at most one run per course; the run is stamped from the
// course's source run and paired with a product at the contract price.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/clock"
	"github.com/smallbiznis/learnway/internal/config"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	"github.com/smallbiznis/learnway/internal/courseware/domain"
	"github.com/smallbiznis/learnway/internal/locker"
	orgdomain "github.com/smallbiznis/learnway/internal/organization/domain"
	productdomain "github.com/smallbiznis/learnway/internal/product/domain"
	"github.com/smallbiznis/learnway/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrTargetCourseRunExists = errors.New("target_course_run_exists")
	ErrSourceRunMissing      = errors.New("source_run_missing")
	ErrCourseNotFound        = errors.New("course_not_found")
	ErrProgramNotFound       = errors.New("program_not_found")
	ErrProvisioningLocked    = errors.New("provisioning_locked")
)

type Provisioner struct {
	log        *zap.Logger
	db         *gorm.DB
	genID      *snowflake.Node
	clock      clock.Clock
	locker     *locker.Locker
	cfg        *config.B2BConfigHolder
	courseware domain.Repository
	products   productdomain.Repository
	orgs       orgdomain.Repository
}

type ProvisionerParam struct {
	fx.In

	Log        *zap.Logger
	DB         *gorm.DB
	GenID      *snowflake.Node
	Clock      clock.Clock
	Locker     *locker.Locker `optional:"true"`
	Cfg        *config.B2BConfigHolder
	Courseware domain.Repository
	Products   productdomain.Repository
	Orgs       orgdomain.Repository
}

func New(p ProvisionerParam) *Provisioner {
	return &Provisioner{
		log:        p.Log.Named("courseware.provisioner"),
		db:         p.DB,
		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		cfg:        p.Cfg,
		courseware: p.Courseware,
		products:   p.Products,
		orgs:       p.Orgs,
	}
}

// CreateContractRun clones a course's source run for a contract and
// creates the matching product in the same transaction. A second call
// for the same (contract, course) pair fails with
// ErrTargetCourseRunExists.
func (p *Provisioner) CreateContractRun(ctx context.Context, contract contractdomain.Contract, courseID snowflake.ID) (*domain.CourseRun, error) {
	course, err := p.courseware.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	existing, err := p.courseware.GetContractRun(ctx, course.ID, contract.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrTargetCourseRunExists
	}

	source, err := p.courseware.GetSourceRun(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrSourceRunMissing
	}

	org, err := p.orgs.GetByID(ctx, contract.OrgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organization %d not found for contract %d", contract.OrgID, contract.ID)
	}

	now := p.clock.Now()
	runTag := domain.FormatRunTag(contract.ID, now.Year())

	// Run dates come from the contract window; an open window starts the
	// run immediately. Contract runs are always self-paced and certify
	// from day one, regardless of how the source run is configured.
	startAt := now
	if contract.StartAt != nil {
		startAt = *contract.StartAt
	}

	run := domain.CourseRun{
		ID:                     p.genID.Generate(),
		CourseID:               course.ID,
		ContractID:             &contract.ID,
		CoursewareID:           domain.FormatCoursewareID(org.OrgKey, course.Code, runTag),
		RunTag:                 runTag,
		Title:                  source.Title,
		ReadableID:             fmt.Sprintf("%s-%s", course.ReadableID, strings.ToLower(runTag)),
		StartAt:                &startAt,
		EndAt:                  contract.EndAt,
		CertificateAvailableAt: &startAt,
		SelfPaced:              true,
	}

	price := int64(0)
	if cents, ok := contract.PriceCents(); ok {
		price = cents
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.courseware.WithTx(tx).CreateRun(ctx, run); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return ErrTargetCourseRunExists
			}
			return err
		}
		return p.products.WithTx(tx).Create(ctx, productdomain.Product{
			ID:          p.genID.Generate(),
			CourseRunID: run.ID,
			PriceCents:  price,
			Description: fmt.Sprintf("%s: %s (%s)", org.Name, course.Title, course.ReadableID),
			Active:      true,
		})
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("contract run created",
		zap.String("contract_id", contract.ID.String()),
		zap.String("course_id", course.ID.String()),
		zap.String("courseware_id", run.CoursewareID),
		zap.Int64("price_cents", price),
	)
	return &run, nil
}

// AddProgramCourses provisions a run for every course in a program. It
// holds a per-(contract, program) lock so a retried job cannot race a
// slow first attempt; already-provisioned courses are skipped, not
// errors.
func (p *Provisioner) AddProgramCourses(ctx context.Context, contract contractdomain.Contract, programID snowflake.ID) (added, skipped int, err error) {
	program, err := p.courseware.GetProgram(ctx, programID)
	if err != nil {
		return 0, 0, err
	}
	if program == nil {
		return 0, 0, ErrProgramNotFound
	}

	if p.locker != nil {
		key := fmt.Sprintf("learnway:program_runs:%d:%d", contract.ID, programID)
		token, ok, lockErr := p.locker.TryLock(ctx, key, p.cfg.Get().ProgramRunLockTTL)
		if lockErr != nil {
			return 0, 0, lockErr
		}
		if !ok {
			return 0, 0, ErrProvisioningLocked
		}
		defer func() {
			if relErr := p.locker.Release(ctx, key, token); relErr != nil {
				p.log.Warn("program run lock release failed", zap.Error(relErr))
			}
		}()
	}

	courses, err := p.courseware.ListProgramCourses(ctx, programID)
	if err != nil {
		return 0, 0, err
	}

	for _, course := range courses {
		_, runErr := p.CreateContractRun(ctx, contract, course.ID)
		switch {
		case runErr == nil:
			added++
		case errors.Is(runErr, ErrTargetCourseRunExists):
			skipped++
		default:
			return added, skipped, runErr
		}
	}

	p.log.Info("program courses provisioned",
		zap.String("contract_id", contract.ID.String()),
		zap.String("program_id", programID.String()),
		zap.Int("added", added),
		zap.Int("skipped", skipped),
	)
	return added, skipped, nil
}

// RemoveContractRun deletes a contract-scoped run and deactivates its
// product. Source runs are never deleted through this path.
func (p *Provisioner) RemoveContractRun(ctx context.Context, contract contractdomain.Contract, courseID snowflake.ID) error {
	run, err := p.courseware.GetContractRun(ctx, courseID, contract.ID)
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := p.products.WithTx(tx).GetActiveByRun(ctx, run.ID)
		if err != nil {
			return err
		}
		if product != nil {
			if err := p.products.WithTx(tx).Deactivate(ctx, product.ID); err != nil {
				return err
			}
		}
		return p.courseware.WithTx(tx).DeleteRun(ctx, run.ID)
	})
}
