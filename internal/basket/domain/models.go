// Package domain contains basket models and the outcomes of B2B
// checkout validation.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a basket.
type Status string

const (
	StatusOpen       Status = "open"
	StatusCheckedOut Status = "checked_out"
)

type Basket struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	Status    Status       `gorm:"type:text;not null" json:"status"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Basket) TableName() string { return "baskets" }

type BasketItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	BasketID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_basket_item,priority:1" json:"basket_id"`
	ProductID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_basket_item,priority:2" json:"product_id"`
}

// TableName sets the database table name.
func (BasketItem) TableName() string { return "basket_items" }

type BasketDiscount struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BasketID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_basket_discount,priority:1" json:"basket_id"`
	DiscountID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_basket_discount,priority:2" json:"discount_id"`
}

// TableName sets the database table name.
func (BasketDiscount) TableName() string { return "basket_discounts" }

// EnrollResult tags the discriminated union returned by the enroll
// endpoint.
type EnrollResult string

const (
	ResultEnrolled            EnrollResult = "enrolled"
	ResultDuplicate           EnrollResult = "duplicate"
	ResultBlocked             EnrollResult = "blocked"
	ResultDiscountInvalid     EnrollResult = "discount_invalid"
	ResultCountryBlocked      EnrollResult = "country_blocked"
	ResultNonUpgradable       EnrollResult = "non_upgradable"
	ResultPaymentZeroAccepted EnrollResult = "payment_zero_accepted"
)

// EnrollOutcome is the enroll endpoint's response body.
type EnrollOutcome struct {
	Result         EnrollResult  `json:"result"`
	OrderID        *snowflake.ID `json:"order,omitempty"`
	PriceCents     *int64        `json:"price,omitempty"`
	CheckoutResult string        `json:"checkout_result,omitempty"`
}

// Fast-path preconditions each carry a distinct error so callers can
// tell which one failed.
var (
	ErrNoProgramEnrollment = errors.New("no_program_enrollment")
	ErrBasketNotEmpty      = errors.New("basket_not_empty")
	ErrBasketNotZeroValue  = errors.New("basket_not_zero_value")
	ErrOrderIncomplete     = errors.New("order_incomplete")

	ErrRunNotFound  = errors.New("course_run_not_found")
	ErrUserNotFound = errors.New("user_not_found")
)
