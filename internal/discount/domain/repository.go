package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, discount Discount) error
	Save(ctx context.Context, discount Discount) error
	Delete(ctx context.Context, id snowflake.ID) error
	GetByID(ctx context.Context, id snowflake.ID) (*Discount, error)
	GetByCode(ctx context.Context, code string) (*Discount, error)
	ListByContract(ctx context.Context, contractID snowflake.ID) ([]Discount, error)

	LinkProduct(ctx context.Context, link DiscountProduct) error
	UnlinkProduct(ctx context.Context, discountID, productID snowflake.ID) error
	UnlinkProducts(ctx context.Context, discountID snowflake.ID) error
	ListProductLinks(ctx context.Context, discountID snowflake.ID) ([]DiscountProduct, error)
	CountProductLinks(ctx context.Context, discountID snowflake.ID) (int64, error)
	ListDiscountsForProduct(ctx context.Context, productID snowflake.ID) ([]Discount, error)

	CreateRedemption(ctx context.Context, redemption DiscountRedemption) error
	ListOverRedeemed(ctx context.Context, contractID snowflake.ID) ([]Discount, error)
	CountRedemptions(ctx context.Context, discountID snowflake.ID) (int64, error)
	CountRedemptionsByUser(ctx context.Context, discountID, userID snowflake.ID) (int64, error)
	ListRedemptions(ctx context.Context, discountID snowflake.ID) ([]DiscountRedemption, error)

	CreateAttachmentRedemption(ctx context.Context, redemption ContractAttachmentRedemption) error
	HasAttachmentRedemption(ctx context.Context, contractID, userID snowflake.ID) (bool, error)
}
