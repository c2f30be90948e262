// Package domain contains the sellable product model. Exactly one
// active product may exist per course run; the database enforces it
// with a partial unique index.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Product struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CourseRunID snowflake.ID `gorm:"not null;index;column:course_run_id" json:"course_run_id"`
	PriceCents  int64        `gorm:"not null;default:0;column:price_cents" json:"price_cents"`
	Description string       `gorm:"type:text" json:"description"`
	Active      bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }
