package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/courseware/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) GetCourse(ctx context.Context, id snowflake.ID) (*domain.Course, error) {
	var course domain.Course
	if err := r.first(ctx, &course, `id = ?`, id); err != nil {
		return nil, err
	}
	if course.ID == 0 {
		return nil, nil
	}
	return &course, nil
}

func (r *repository) GetCourseByReadableID(ctx context.Context, readableID string) (*domain.Course, error) {
	var course domain.Course
	if err := r.first(ctx, &course, `readable_id = ?`, strings.TrimSpace(readableID)); err != nil {
		return nil, err
	}
	if course.ID == 0 {
		return nil, nil
	}
	return &course, nil
}

func (r *repository) ListCourses(ctx context.Context) ([]domain.Course, error) {
	var courses []domain.Course
	err := r.db.WithContext(ctx).Order("id ASC").Find(&courses).Error
	return courses, err
}

func (r *repository) CreateRun(ctx context.Context, run domain.CourseRun) error {
	return r.db.WithContext(ctx).Create(&run).Error
}

func (r *repository) DeleteRun(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(`DELETE FROM course_runs WHERE id = ?`, id).Error
}

func (r *repository) GetRun(ctx context.Context, id snowflake.ID) (*domain.CourseRun, error) {
	var run domain.CourseRun
	if err := r.first(ctx, &run, `id = ?`, id); err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repository) GetRunByReadableID(ctx context.Context, readableID string) (*domain.CourseRun, error) {
	var run domain.CourseRun
	if err := r.first(ctx, &run, `readable_id = ?`, strings.TrimSpace(readableID)); err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repository) GetRunByCoursewareID(ctx context.Context, coursewareID string) (*domain.CourseRun, error) {
	var run domain.CourseRun
	if err := r.first(ctx, &run, `courseware_id = ?`, strings.TrimSpace(coursewareID)); err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repository) GetContractRun(ctx context.Context, courseID, contractID snowflake.ID) (*domain.CourseRun, error) {
	var run domain.CourseRun
	if err := r.first(ctx, &run, `course_id = ? AND contract_id = ?`, courseID, contractID); err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repository) ListContractRuns(ctx context.Context, contractID snowflake.ID) ([]domain.CourseRun, error) {
	var runs []domain.CourseRun
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("id ASC").
		Find(&runs).Error
	return runs, err
}

func (r *repository) GetSourceRun(ctx context.Context, courseID snowflake.ID) (*domain.CourseRun, error) {
	var run domain.CourseRun
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND is_source", courseID).
		Order("id ASC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *repository) GetProgram(ctx context.Context, id snowflake.ID) (*domain.Program, error) {
	var program domain.Program
	if err := r.first(ctx, &program, `id = ?`, id); err != nil {
		return nil, err
	}
	if program.ID == 0 {
		return nil, nil
	}
	return &program, nil
}

func (r *repository) GetProgramByReadableID(ctx context.Context, readableID string) (*domain.Program, error) {
	var program domain.Program
	if err := r.first(ctx, &program, `readable_id = ?`, strings.TrimSpace(readableID)); err != nil {
		return nil, err
	}
	if program.ID == 0 {
		return nil, nil
	}
	return &program, nil
}

func (r *repository) ListProgramCourses(ctx context.Context, programID snowflake.ID) ([]domain.Course, error) {
	var courses []domain.Course
	err := r.db.WithContext(ctx).Raw(
		`SELECT c.*
		 FROM courses c
		 JOIN program_courses pc ON pc.course_id = c.id
		 WHERE pc.program_id = ?
		 ORDER BY pc.position ASC, c.id ASC`,
		programID,
	).Scan(&courses).Error
	return courses, err
}

func (r *repository) ListProgramsByCourse(ctx context.Context, courseID snowflake.ID) ([]domain.Program, error) {
	var programs []domain.Program
	err := r.db.WithContext(ctx).Raw(
		`SELECT p.*
		 FROM programs p
		 JOIN program_courses pc ON pc.program_id = p.id
		 WHERE pc.course_id = ?
		 ORDER BY p.id ASC`,
		courseID,
	).Scan(&programs).Error
	return programs, err
}

func (r *repository) IsCountryBlocked(ctx context.Context, courseID snowflake.ID, countryCode string) (bool, error) {
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	if countryCode == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.CourseCountryBlock{}).
		Where("course_id = ? AND country_code = ?", courseID, countryCode).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) first(ctx context.Context, dest any, query string, args ...any) error {
	err := r.db.WithContext(ctx).Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
