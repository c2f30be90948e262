// Package domain contains persistence models for courses, course runs
// and programs. Only courseware_id strings and run metadata cross the
// boundary to the external courseware system.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CoursewareIDPrefix matches the external courseware system's key space.
const CoursewareIDPrefix = "course-v1:"

// Course is the catalog entry a run is an offering of.
type Course struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Code       string       `gorm:"type:text;not null" json:"code"`
	Title      string       `gorm:"type:text;not null" json:"title"`
	ReadableID string       `gorm:"type:text;not null;uniqueIndex:ux_courses_readable_id;column:readable_id" json:"readable_id"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Course) TableName() string { return "courses" }

// CourseRun is a scheduled offering of a course. A run with a non-nil
// ContractID is a contract-scoped clone; a run flagged IsSource is the
// template those clones are stamped from.
type CourseRun struct {
	ID                     snowflake.ID  `gorm:"primaryKey" json:"id"`
	CourseID               snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_course_runs_contract,priority:1" json:"course_id"`
	ContractID             *snowflake.ID `gorm:"index;uniqueIndex:ux_course_runs_contract,priority:2;column:contract_id" json:"contract_id,omitempty"`
	CoursewareID           string        `gorm:"type:text;not null;uniqueIndex:ux_course_runs_courseware_id;column:courseware_id" json:"courseware_id"`
	RunTag                 string        `gorm:"type:text;not null;column:run_tag" json:"run_tag"`
	Title                  string        `gorm:"type:text;not null" json:"title"`
	ReadableID             string        `gorm:"type:text;not null;uniqueIndex:ux_course_runs_readable_id;column:readable_id" json:"readable_id"`
	StartAt                *time.Time    `gorm:"column:start_at" json:"start_at,omitempty"`
	EndAt                  *time.Time    `gorm:"column:end_at" json:"end_at,omitempty"`
	CertificateAvailableAt *time.Time    `gorm:"column:certificate_available_at" json:"certificate_available_at,omitempty"`
	SelfPaced              bool          `gorm:"not null;default:false;column:self_paced" json:"self_paced"`
	IsSource               bool          `gorm:"not null;default:false;column:is_source" json:"is_source"`
	CreatedAt              time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (CourseRun) TableName() string { return "course_runs" }

// Program is an editorially curated set of courses.
type Program struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Title      string       `gorm:"type:text;not null" json:"title"`
	ReadableID string       `gorm:"type:text;not null;uniqueIndex:ux_programs_readable_id;column:readable_id" json:"readable_id"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Program) TableName() string { return "programs" }

// ProgramCourse orders courses inside a program.
type ProgramCourse struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProgramID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_program_course,priority:1" json:"program_id"`
	CourseID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_program_course,priority:2" json:"course_id"`
	Position  int          `gorm:"not null;default:0" json:"position"`
}

// TableName sets the database table name.
func (ProgramCourse) TableName() string { return "program_courses" }

// CourseCountryBlock blocks enrollment into a course from a country.
type CourseCountryBlock struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CourseID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_course_country,priority:1" json:"course_id"`
	CountryCode string       `gorm:"type:text;not null;uniqueIndex:ux_course_country,priority:2;column:country_code" json:"country_code"`
}

// TableName sets the database table name.
func (CourseCountryBlock) TableName() string { return "course_country_blocks" }

// FormatRunTag derives the tag for a contract-scoped run. The template
// is fixed; changing it would orphan existing courseware ids.
func FormatRunTag(contractID snowflake.ID, year int) string {
	return fmt.Sprintf("R%d-%d", contractID, year)
}

// FormatCoursewareID builds the external identifier for a run:
// course-v1:{org_key}+{course_code}+{run_tag}.
func FormatCoursewareID(orgKey, courseCode, runTag string) string {
	return fmt.Sprintf("%s%s+%s+%s", CoursewareIDPrefix, orgKey, courseCode, runTag)
}
