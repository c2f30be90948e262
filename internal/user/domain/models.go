// Package domain contains persistence models for platform users.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a learner account. Identity is asserted by the gateway; the
// service never stores credentials.
type User struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Email       string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	Name        string       `gorm:"type:text" json:"name"`
	CountryCode string       `gorm:"type:text;column:country_code" json:"country_code"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
