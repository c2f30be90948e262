package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetCourse(ctx context.Context, id snowflake.ID) (*Course, error)
	GetCourseByReadableID(ctx context.Context, readableID string) (*Course, error)
	ListCourses(ctx context.Context) ([]Course, error)

	CreateRun(ctx context.Context, run CourseRun) error
	DeleteRun(ctx context.Context, id snowflake.ID) error
	GetRun(ctx context.Context, id snowflake.ID) (*CourseRun, error)
	GetRunByReadableID(ctx context.Context, readableID string) (*CourseRun, error)
	GetRunByCoursewareID(ctx context.Context, coursewareID string) (*CourseRun, error)
	GetContractRun(ctx context.Context, courseID, contractID snowflake.ID) (*CourseRun, error)
	ListContractRuns(ctx context.Context, contractID snowflake.ID) ([]CourseRun, error)
	GetSourceRun(ctx context.Context, courseID snowflake.ID) (*CourseRun, error)

	GetProgram(ctx context.Context, id snowflake.ID) (*Program, error)
	GetProgramByReadableID(ctx context.Context, readableID string) (*Program, error)
	ListProgramCourses(ctx context.Context, programID snowflake.ID) ([]Course, error)
	ListProgramsByCourse(ctx context.Context, courseID snowflake.ID) ([]Program, error)

	IsCountryBlocked(ctx context.Context, courseID snowflake.ID, countryCode string) (bool, error)
}
