// Package domain contains discount models. B2B enrollment codes are
// full-price discounts owned by a contract and linked to the contract's
// products; consumer coupons share the same tables without a contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind selects how a discount changes a price.
type Kind string

const (
	KindPercentOff Kind = "percent_off"
	KindDollarsOff Kind = "dollars_off"
	KindFixedPrice Kind = "fixed_price"
)

// Policy limits how often a discount may be redeemed.
type Policy string

const (
	PolicyOneTime        Policy = "one_time"
	PolicyOneTimePerUser Policy = "one_time_per_user"
	PolicyUnlimited      Policy = "unlimited"
)

// PaymentCategoryEnrollmentCode marks discounts minted by contract
// reconciliation. Financial reporting keys off this value.
const PaymentCategoryEnrollmentCode = "enrollment_code"

type Discount struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	Code            string        `gorm:"type:text;not null;uniqueIndex:ux_discounts_code" json:"code"`
	Kind            Kind          `gorm:"type:text;not null" json:"kind"`
	Amount          int64         `gorm:"not null" json:"amount"`
	Policy          Policy        `gorm:"type:text;not null" json:"policy"`
	PaymentCategory string        `gorm:"type:text;not null;column:payment_category" json:"payment_category"`
	ContractID      *snowflake.ID `gorm:"index;column:contract_id" json:"contract_id,omitempty"`
	ActivatesAt     *time.Time    `gorm:"column:activates_at" json:"activates_at,omitempty"`
	ExpiresAt       *time.Time    `gorm:"column:expires_at" json:"expires_at,omitempty"`
	IsBulk          bool          `gorm:"not null;default:false;column:is_bulk" json:"is_bulk"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Discount) TableName() string { return "discounts" }

// ValidNow reports whether the discount's activation window admits t.
func (d Discount) ValidNow(t time.Time) bool {
	if d.ActivatesAt != nil && t.Before(*d.ActivatesAt) {
		return false
	}
	if d.ExpiresAt != nil && !t.Before(*d.ExpiresAt) {
		return false
	}
	return true
}

// ApplyTo returns the discounted price in cents, clamped at zero.
func (d Discount) ApplyTo(priceCents int64) int64 {
	var result int64
	switch d.Kind {
	case KindPercentOff:
		pct := d.Amount
		if pct > 100 {
			pct = 100
		}
		result = priceCents - priceCents*pct/100
	case KindDollarsOff:
		result = priceCents - d.Amount
	case KindFixedPrice:
		result = d.Amount
	default:
		result = priceCents
	}
	if result < 0 {
		return 0
	}
	return result
}

// DiscountProduct links a discount to a product it can be applied to.
type DiscountProduct struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	DiscountID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_discount_product,priority:1" json:"discount_id"`
	ProductID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_discount_product,priority:2" json:"product_id"`
}

// TableName sets the database table name.
func (DiscountProduct) TableName() string { return "discount_products" }

// DiscountRedemption records a discount applied to an order.
type DiscountRedemption struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	DiscountID snowflake.ID `gorm:"not null;index" json:"discount_id"`
	UserID     snowflake.ID `gorm:"not null;index" json:"user_id"`
	OrderID    snowflake.ID `gorm:"not null;index" json:"order_id"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (DiscountRedemption) TableName() string { return "discount_redemptions" }

// ContractAttachmentRedemption records an enrollment code used to attach
// a user to a contract rather than to pay for an order.
type ContractAttachmentRedemption struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	DiscountID snowflake.ID `gorm:"not null;index" json:"discount_id"`
	ContractID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_attachment_redemption,priority:1" json:"contract_id"`
	UserID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_attachment_redemption,priority:2" json:"user_id"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ContractAttachmentRedemption) TableName() string { return "contract_attachment_redemptions" }
