// Package domain contains enrollment models for course runs and
// programs.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Mode distinguishes free audit access from a verified seat.
type Mode string

const (
	ModeAudit    Mode = "audit"
	ModeVerified Mode = "verified"
)

type CourseRunEnrollment struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID `gorm:"not null;index;uniqueIndex:ux_run_enrollment,priority:1" json:"user_id"`
	CourseRunID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_run_enrollment,priority:2;column:course_run_id" json:"course_run_id"`
	Mode        Mode         `gorm:"type:text;not null" json:"mode"`
	Active      bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (CourseRunEnrollment) TableName() string { return "course_run_enrollments" }

type ProgramEnrollment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_program_enrollment,priority:1" json:"user_id"`
	ProgramID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_program_enrollment,priority:2" json:"program_id"`
	Mode      Mode         `gorm:"type:text;not null" json:"mode"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ProgramEnrollment) TableName() string { return "program_enrollments" }
