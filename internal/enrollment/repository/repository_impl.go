package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/enrollment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) domain.Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

// UpsertRunEnrollment creates or refreshes an enrollment. A re-enroll
// may upgrade audit to verified and reactivate an inactive row; it never
// downgrades.
func (r *repository) UpsertRunEnrollment(ctx context.Context, enrollment domain.CourseRunEnrollment) error {
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "course_run_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"mode":       enrollment.Mode,
			"active":     enrollment.Active,
			"updated_at": now,
		}),
	}).Create(&enrollment).Error
}

func (r *repository) GetRunEnrollment(ctx context.Context, userID, courseRunID snowflake.ID) (*domain.CourseRunEnrollment, error) {
	var enrollment domain.CourseRunEnrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_run_id = ?", userID, courseRunID).
		First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *repository) ListRunEnrollments(ctx context.Context, userID snowflake.ID) ([]domain.CourseRunEnrollment, error) {
	var enrollments []domain.CourseRunEnrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&enrollments).Error
	return enrollments, err
}

func (r *repository) UpsertProgramEnrollment(ctx context.Context, enrollment domain.ProgramEnrollment) error {
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "program_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"mode":       enrollment.Mode,
			"active":     enrollment.Active,
			"updated_at": now,
		}),
	}).Create(&enrollment).Error
}

func (r *repository) GetProgramEnrollment(ctx context.Context, userID, programID snowflake.ID) (*domain.ProgramEnrollment, error) {
	var enrollment domain.ProgramEnrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND program_id = ?", userID, programID).
		First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}
