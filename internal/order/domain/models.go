// Package domain contains order models. Zero-value B2B checkouts still
// produce orders so every enrollment has a purchase trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated   Status = "created"
	StatusFulfilled Status = "fulfilled"
	StatusRefunded  Status = "refunded"
)

type Order struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID `gorm:"not null;index" json:"user_id"`
	Status     Status       `gorm:"type:text;not null" json:"status"`
	TotalCents int64        `gorm:"not null;default:0;column:total_cents" json:"total_cents"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderLine is one purchased product on an order.
type OrderLine struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID    snowflake.ID `gorm:"not null;index" json:"order_id"`
	ProductID  snowflake.ID `gorm:"not null;index" json:"product_id"`
	PriceCents int64        `gorm:"not null;default:0;column:price_cents" json:"price_cents"`
	PaidCents  int64        `gorm:"not null;default:0;column:paid_cents" json:"paid_cents"`
}

// TableName sets the database table name.
func (OrderLine) TableName() string { return "order_lines" }
