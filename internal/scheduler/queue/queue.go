// Package queue persists reconciliation jobs. Producers upsert one row
// per (kind, ref) so repeated triggers collapse into the latest request;
// the scheduler claims rows with FOR UPDATE SKIP LOCKED.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	JobKindContractCodes = "contract_codes"
	JobKindUserOrgs      = "user_orgs"
	JobKindOrgSync       = "org_sync"
	JobKindProgramRuns   = "program_runs"
)

// ReconcileJob is one unit of pending reconciliation work.
type ReconcileJob struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	Kind      string         `gorm:"type:text;not null;uniqueIndex:ux_reconcile_jobs_ref,priority:1"`
	RefKey    string         `gorm:"type:text;not null;uniqueIndex:ux_reconcile_jobs_ref,priority:2;column:ref_key"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	Attempts  int            `gorm:"not null;default:0"`
	RunAfter  *time.Time     `gorm:"column:run_after"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ReconcileJob) TableName() string { return "reconcile_jobs" }

// UserOrgsPayload is the body of a user_orgs job. The most recent
// payload wins; earlier ones are overwritten in place.
type UserOrgsPayload struct {
	UserID   snowflake.ID `json:"user_id"`
	OrgUUIDs []string     `json:"org_uuids"`
}

// ProgramRunsPayload is the body of a program_runs job.
type ProgramRunsPayload struct {
	ContractID snowflake.ID `json:"contract_id"`
	ProgramID  snowflake.ID `json:"program_id"`
}

type Queue struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func New(db *gorm.DB, genID *snowflake.Node) *Queue {
	return &Queue{db: db, genID: genID}
}

func (q *Queue) WithTx(tx *gorm.DB) *Queue {
	return &Queue{db: tx, genID: q.genID}
}

// EnqueueContractCodes schedules an enrollment-code check for a contract.
func (q *Queue) EnqueueContractCodes(ctx context.Context, contractID snowflake.ID) error {
	return q.upsert(ctx, ReconcileJob{
		ID:     q.genID.Generate(),
		Kind:   JobKindContractCodes,
		RefKey: fmt.Sprintf("contract:%d", contractID),
	})
}

// EnqueueUserOrgs schedules an SSO membership reconciliation. Only the
// latest payload per user matters.
func (q *Queue) EnqueueUserOrgs(ctx context.Context, userID snowflake.ID, orgUUIDs []string) error {
	payload, err := json.Marshal(UserOrgsPayload{UserID: userID, OrgUUIDs: orgUUIDs})
	if err != nil {
		return err
	}
	return q.upsert(ctx, ReconcileJob{
		ID:      q.genID.Generate(),
		Kind:    JobKindUserOrgs,
		RefKey:  fmt.Sprintf("user:%d", userID),
		Payload: payload,
	})
}

// EnqueueOrgSync schedules the singleton identity-provider sync.
func (q *Queue) EnqueueOrgSync(ctx context.Context) error {
	return q.upsert(ctx, ReconcileJob{
		ID:     q.genID.Generate(),
		Kind:   JobKindOrgSync,
		RefKey: "singleton",
	})
}

// EnqueueProgramRuns schedules provisioning of every course in a program
// for a contract. One job per (contract, program) pair.
func (q *Queue) EnqueueProgramRuns(ctx context.Context, contractID, programID snowflake.ID) error {
	payload, err := json.Marshal(ProgramRunsPayload{ContractID: contractID, ProgramID: programID})
	if err != nil {
		return err
	}
	return q.upsert(ctx, ReconcileJob{
		ID:      q.genID.Generate(),
		Kind:    JobKindProgramRuns,
		RefKey:  fmt.Sprintf("pair:%d:%d", contractID, programID),
		Payload: payload,
	})
}

func (q *Queue) upsert(ctx context.Context, job ReconcileJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	return q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "ref_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"payload":    job.Payload,
			"run_after":  nil,
			"updated_at": now,
		}),
	}).Create(&job).Error
}
