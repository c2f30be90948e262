package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	UpsertRunEnrollment(ctx context.Context, enrollment CourseRunEnrollment) error
	GetRunEnrollment(ctx context.Context, userID, courseRunID snowflake.ID) (*CourseRunEnrollment, error)
	ListRunEnrollments(ctx context.Context, userID snowflake.ID) ([]CourseRunEnrollment, error)

	UpsertProgramEnrollment(ctx context.Context, enrollment ProgramEnrollment) error
	GetProgramEnrollment(ctx context.Context, userID, programID snowflake.ID) (*ProgramEnrollment, error)
}
