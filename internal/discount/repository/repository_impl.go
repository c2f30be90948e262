package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/discount/domain"
	"github.com/smallbiznis/learnway/pkg/db"
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

func (r *repository) Create(ctx context.Context, discount domain.Discount) error {
	return r.db.WithContext(ctx).Create(&discount).Error
}

func (r *repository) Save(ctx context.Context, discount domain.Discount) error {
	discount.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(&discount).Error
}

func (r *repository) Delete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(`DELETE FROM discounts WHERE id = ?`, id).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Discount, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *repository) GetByCode(ctx context.Context, code string) (*domain.Discount, error) {
	return r.getOne(ctx, `code = ?`, strings.TrimSpace(code))
}

// ListByContract returns a contract's codes in primary-key order, which
// is also creation order. Reconciliation rewrites codes positionally and
// depends on this ordering staying stable.
func (r *repository) ListByContract(ctx context.Context, contractID snowflake.ID) ([]domain.Discount, error) {
	var discounts []domain.Discount
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("id ASC").
		Find(&discounts).Error
	return discounts, err
}

func (r *repository) LinkProduct(ctx context.Context, link domain.DiscountProduct) error {
	err := r.db.WithContext(ctx).Create(&link).Error
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repository) UnlinkProduct(ctx context.Context, discountID, productID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM discount_products WHERE discount_id = ? AND product_id = ?`,
		discountID,
		productID,
	).Error
}

func (r *repository) UnlinkProducts(ctx context.Context, discountID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM discount_products WHERE discount_id = ?`,
		discountID,
	).Error
}

func (r *repository) ListProductLinks(ctx context.Context, discountID snowflake.ID) ([]domain.DiscountProduct, error) {
	var links []domain.DiscountProduct
	err := r.db.WithContext(ctx).
		Where("discount_id = ?", discountID).
		Order("id ASC").
		Find(&links).Error
	return links, err
}

func (r *repository) CountProductLinks(ctx context.Context, discountID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.DiscountProduct{}).
		Where("discount_id = ?", discountID).
		Count(&count).Error
	return count, err
}

func (r *repository) ListDiscountsForProduct(ctx context.Context, productID snowflake.ID) ([]domain.Discount, error) {
	var discounts []domain.Discount
	err := r.db.WithContext(ctx).Raw(
		`SELECT d.*
		 FROM discounts d
		 JOIN discount_products dp ON dp.discount_id = d.id
		 WHERE dp.product_id = ?
		 ORDER BY d.id ASC`,
		productID,
	).Scan(&discounts).Error
	return discounts, err
}

func (r *repository) CreateRedemption(ctx context.Context, redemption domain.DiscountRedemption) error {
	return r.db.WithContext(ctx).Create(&redemption).Error
}

// ListOverRedeemed returns a contract's one-time codes carrying more
// than one redemption. Checkout counts redemptions without a
// serializing lock, so two racing orders can both pass the policy
// check; this query finds what slipped through.
func (r *repository) ListOverRedeemed(ctx context.Context, contractID snowflake.ID) ([]domain.Discount, error) {
	var discounts []domain.Discount
	err := r.db.WithContext(ctx).Raw(
		`SELECT d.*
		 FROM discounts d
		 JOIN discount_redemptions dr ON dr.discount_id = d.id
		 WHERE d.contract_id = ? AND d.policy = ?
		 GROUP BY d.id
		 HAVING COUNT(dr.id) > 1
		 ORDER BY d.id ASC`,
		contractID,
		domain.PolicyOneTime,
	).Scan(&discounts).Error
	return discounts, err
}

func (r *repository) CountRedemptions(ctx context.Context, discountID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.DiscountRedemption{}).
		Where("discount_id = ?", discountID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountRedemptionsByUser(ctx context.Context, discountID, userID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.DiscountRedemption{}).
		Where("discount_id = ? AND user_id = ?", discountID, userID).
		Count(&count).Error
	return count, err
}

func (r *repository) ListRedemptions(ctx context.Context, discountID snowflake.ID) ([]domain.DiscountRedemption, error) {
	var redemptions []domain.DiscountRedemption
	err := r.db.WithContext(ctx).
		Where("discount_id = ?", discountID).
		Order("id ASC").
		Find(&redemptions).Error
	return redemptions, err
}

func (r *repository) CreateAttachmentRedemption(ctx context.Context, redemption domain.ContractAttachmentRedemption) error {
	err := r.db.WithContext(ctx).Create(&redemption).Error
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repository) HasAttachmentRedemption(ctx context.Context, contractID, userID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.ContractAttachmentRedemption{}).
		Where("contract_id = ? AND user_id = ?", contractID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) getOne(ctx context.Context, query string, arg any) (*domain.Discount, error) {
	var discount domain.Discount
	err := r.db.WithContext(ctx).Where(query, arg).First(&discount).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &discount, nil
}
