// Package scheduler drains the reconcile_jobs table. Claimed rows are
// locked with FOR UPDATE SKIP LOCKED so multiple instances can run the
// loop without stepping on each other.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/attachment"
	"github.com/smallbiznis/learnway/internal/clock"
	"github.com/smallbiznis/learnway/internal/config"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	"github.com/smallbiznis/learnway/internal/courseware/provisioner"
	"github.com/smallbiznis/learnway/internal/enrollcode"
	"github.com/smallbiznis/learnway/internal/locker"
	obsmetrics "github.com/smallbiznis/learnway/internal/observability/metrics"
	"github.com/smallbiznis/learnway/internal/scheduler/queue"
	"github.com/smallbiznis/learnway/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const orgSyncLockKey = "learnway:org_sync"

// OrgSyncer pulls organization records from the identity provider. The
// default implementation only logs; deployments wire a real client.
type OrgSyncer interface {
	SyncOrganizations(ctx context.Context) error
}

type noopOrgSyncer struct {
	log *zap.Logger
}

func (n noopOrgSyncer) SyncOrganizations(ctx context.Context) error {
	n.log.Debug("organization sync skipped, no identity provider configured")
	return nil
}

func NewNoopOrgSyncer(log *zap.Logger) OrgSyncer {
	return noopOrgSyncer{log: log.Named("scheduler.orgsync")}
}

type Scheduler struct {
	log         *zap.Logger
	db          *gorm.DB
	clock       clock.Clock
	cfg         *config.B2BConfigHolder
	locker      *locker.Locker
	reconciler  *enrollcode.Reconciler
	attachments *attachment.Service
	provisioner *provisioner.Provisioner
	contracts   contractdomain.Repository
	orgSync     OrgSyncer

	stop chan struct{}
	done chan struct{}
}

type SchedulerParam struct {
	fx.In

	Log         *zap.Logger
	DB          *gorm.DB
	Clock       clock.Clock
	Cfg         *config.B2BConfigHolder
	Locker      *locker.Locker `optional:"true"`
	Reconciler  *enrollcode.Reconciler
	Attachments *attachment.Service
	Provisioner *provisioner.Provisioner
	Contracts   contractdomain.Repository
	OrgSync     OrgSyncer
}

func New(p SchedulerParam) *Scheduler {
	return &Scheduler{
		log:         p.Log.Named("scheduler"),
		db:          p.DB,
		clock:       p.Clock,
		cfg:         p.Cfg,
		locker:      p.Locker,
		reconciler:  p.Reconciler,
		attachments: p.Attachments,
		provisioner: p.Provisioner,
		contracts:   p.Contracts,
		orgSync:     p.OrgSync,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the polling loop.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop signals the loop and waits for the in-flight batch to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		interval := s.cfg.Get().SchedulerInterval
		select {
		case <-s.stop:
			return
		case <-time.After(interval):
		}
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Error("scheduler pass failed", zap.Error(err))
		}
	}
}

// RunOnce claims one batch of due jobs and runs them. Exported so tests
// and the CLI can drive the scheduler synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	jobs, err := s.claim(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		s.runJob(ctx, job)
	}
	return nil
}

// claim locks and returns due jobs. The SKIP LOCKED clause keeps
// competing instances from claiming the same rows; dialects without row
// locks (tests) fall back to a plain select.
func (s *Scheduler) claim(ctx context.Context) ([]queue.ReconcileJob, error) {
	cfg := s.cfg.Get()
	now := s.clock.Now()

	var jobs []queue.ReconcileJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sql := `SELECT * FROM reconcile_jobs
		        WHERE run_after IS NULL OR run_after <= ?
		        ORDER BY updated_at ASC
		        LIMIT ?`
		if db.SupportsRowLocks(tx) {
			sql += ` FOR UPDATE SKIP LOCKED`
		}
		lockStart := time.Now()
		err := tx.Raw(sql, now, cfg.SchedulerBatchSize).Scan(&jobs).Error
		obsmetrics.Reconciler().ObserveDBLockWait(obsmetrics.LockResourceJobsForWork, time.Since(lockStart))
		if err != nil {
			return err
		}
		// Push claimed rows past the timeout so a crashed worker's jobs
		// become claimable again.
		retryAt := now.Add(cfg.JobTimeout)
		for _, job := range jobs {
			if err := tx.Exec(
				`UPDATE reconcile_jobs SET attempts = attempts + 1, run_after = ?, updated_at = ? WHERE id = ?`,
				retryAt, now, job.ID,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return jobs, err
}

func (s *Scheduler) runJob(ctx context.Context, job queue.ReconcileJob) {
	cfg := s.cfg.Get()
	metrics := obsmetrics.Reconciler()
	metrics.IncJobRun(job.Kind)

	jobCtx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := s.dispatch(jobCtx, job)
	metrics.ObserveJobDuration(job.Kind, time.Since(start))

	switch {
	case err == nil:
		if delErr := s.db.WithContext(ctx).Exec(
			`DELETE FROM reconcile_jobs WHERE id = ?`, job.ID,
		).Error; delErr != nil {
			s.log.Error("job ack failed", zap.String("kind", job.Kind), zap.Error(delErr))
		}
	case errors.Is(err, context.DeadlineExceeded):
		metrics.IncJobTimeout(job.Kind)
		s.log.Warn("job hit soft timeout",
			zap.String("kind", job.Kind),
			zap.String("ref", job.RefKey),
		)
	default:
		metrics.IncJobError(job.Kind, err)
		s.log.Error("job failed",
			zap.String("kind", job.Kind),
			zap.String("ref", job.RefKey),
			zap.Int("attempts", job.Attempts+1),
			zap.Error(err),
		)
		if job.Attempts+1 >= cfg.MaxJobAttempts {
			s.log.Error("job dropped after max attempts",
				zap.String("kind", job.Kind),
				zap.String("ref", job.RefKey),
			)
			if delErr := s.db.WithContext(ctx).Exec(
				`DELETE FROM reconcile_jobs WHERE id = ?`, job.ID,
			).Error; delErr != nil {
				s.log.Error("job drop failed", zap.Error(delErr))
			}
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job queue.ReconcileJob) error {
	switch job.Kind {
	case queue.JobKindContractCodes:
		return s.handleContractCodes(ctx, job)
	case queue.JobKindUserOrgs:
		return s.handleUserOrgs(ctx, job)
	case queue.JobKindOrgSync:
		return s.handleOrgSync(ctx)
	case queue.JobKindProgramRuns:
		return s.handleProgramRuns(ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (s *Scheduler) handleContractCodes(ctx context.Context, job queue.ReconcileJob) error {
	ref := strings.TrimPrefix(job.RefKey, "contract:")
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return fmt.Errorf("bad contract ref %q: %w", job.RefKey, err)
	}
	_, err = s.reconciler.EnsureEnrollmentCodesExist(ctx, snowflake.ID(id))
	return err
}

func (s *Scheduler) handleUserOrgs(ctx context.Context, job queue.ReconcileJob) error {
	var payload queue.UserOrgsPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("bad user_orgs payload: %w", err)
	}
	return s.attachments.ReconcileUserOrgs(ctx, payload.UserID, payload.OrgUUIDs)
}

// handleOrgSync runs the singleton identity-provider sync. The lock
// makes it a no-op when another instance holds it.
func (s *Scheduler) handleOrgSync(ctx context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, orgSyncLockKey, s.cfg.Get().OrgSyncLockTTL)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		defer func() {
			if err := s.locker.Release(ctx, orgSyncLockKey, token); err != nil {
				s.log.Warn("org sync lock release failed", zap.Error(err))
			}
		}()
	}
	return s.orgSync.SyncOrganizations(ctx)
}

func (s *Scheduler) handleProgramRuns(ctx context.Context, job queue.ReconcileJob) error {
	var payload queue.ProgramRunsPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("bad program_runs payload: %w", err)
	}
	contract, err := s.contracts.GetByID(ctx, payload.ContractID)
	if err != nil {
		return err
	}
	if contract == nil {
		return fmt.Errorf("contract %d not found", payload.ContractID)
	}
	_, _, err = s.provisioner.AddProgramCourses(ctx, *contract, payload.ProgramID)
	if errors.Is(err, provisioner.ErrProvisioningLocked) {
		// Another worker owns the pair; its pass covers this request.
		return nil
	}
	return err
}
