package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/contract/domain"
	obsmetrics "github.com/smallbiznis/learnway/internal/observability/metrics"
	"github.com/smallbiznis/learnway/pkg/db"
	"github.com/smallbiznis/learnway/pkg/db/pagination"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) domain.Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, contract domain.Contract) error {
	return r.db.WithContext(ctx).Create(&contract).Error
}

func (r *repository) Save(ctx context.Context, contract domain.Contract) error {
	contract.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(&contract).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Contract, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*domain.Contract, error) {
	return r.getOne(ctx, `slug = ?`, slug)
}

func (r *repository) List(ctx context.Context, orgID snowflake.ID) ([]domain.Contract, error) {
	var contracts []domain.Contract
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("id ASC").
		Find(&contracts).Error
	return contracts, err
}

func (r *repository) ListAll(ctx context.Context) ([]domain.Contract, error) {
	var contracts []domain.Contract
	err := r.db.WithContext(ctx).Order("id ASC").Find(&contracts).Error
	return contracts, err
}

// ListAllPage returns one cursor page of contracts in id order. The
// token encodes the last id of the previous page.
func (r *repository) ListAllPage(ctx context.Context, page pagination.Pagination) ([]domain.Contract, *pagination.PageInfo, error) {
	limit := page.PageSize
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("id ASC").Limit(limit + 1)
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		after, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, err
		}
		q = q.Where("id > ?", after)
	}

	var contracts []domain.Contract
	if err := q.Find(&contracts).Error; err != nil {
		return nil, nil, err
	}

	refs := make([]*domain.Contract, len(contracts))
	for i := range contracts {
		refs[i] = &contracts[i]
	}
	info := pagination.BuildCursorPageInfo(refs, limit, func(contract *domain.Contract) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: contract.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(contracts) > limit {
		contracts = contracts[:limit]
	}
	return contracts, info, nil
}

func (r *repository) ListAutoAttachByOrg(ctx context.Context, orgID snowflake.ID) ([]domain.Contract, error) {
	var contracts []domain.Contract
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND auto_attach", orgID).
		Order("id ASC").
		Find(&contracts).Error
	return contracts, err
}

func (r *repository) LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	if !db.SupportsRowLocks(tx) {
		return nil
	}
	lockStart := time.Now()
	err := tx.WithContext(ctx).Exec(`SELECT id FROM contracts WHERE id = ? FOR UPDATE`, id).Error
	obsmetrics.Reconciler().ObserveDBLockWait(obsmetrics.LockResourceContractRow, time.Since(lockStart))
	return err
}

func (r *repository) CountLearners(ctx context.Context, contractID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.ContractLearner{}).
		Where("contract_id = ?", contractID).
		Count(&count).Error
	return count, err
}

func (r *repository) AddLearner(ctx context.Context, learner domain.ContractLearner) error {
	err := r.db.WithContext(ctx).Create(&learner).Error
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repository) RemoveLearner(ctx context.Context, contractID, userID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM contract_learners WHERE contract_id = ? AND user_id = ?`,
		contractID,
		userID,
	).Error
}

func (r *repository) HasLearner(ctx context.Context, contractID, userID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.ContractLearner{}).
		Where("contract_id = ? AND user_id = ?", contractID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListLearners(ctx context.Context, contractID snowflake.ID) ([]domain.ContractLearner, error) {
	var learners []domain.ContractLearner
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("id ASC").
		Find(&learners).Error
	return learners, err
}

func (r *repository) LinkProgram(ctx context.Context, link domain.ContractProgram) error {
	err := r.db.WithContext(ctx).Create(&link).Error
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repository) ListPrograms(ctx context.Context, contractID snowflake.ID) ([]domain.ContractProgram, error) {
	var links []domain.ContractProgram
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("id ASC").
		Find(&links).Error
	return links, err
}

func (r *repository) getOne(ctx context.Context, query string, arg any) (*domain.Contract, error) {
	var contract domain.Contract
	err := r.db.WithContext(ctx).Where(query, arg).First(&contract).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contract, nil
}
