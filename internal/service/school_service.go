package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

type schoolStore interface {
	List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
	CodeExists(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, school *models.School) error
	Update(ctx context.Context, school *models.School) error
	ListTeacherSchools(ctx context.Context, teacherID string) ([]models.TeacherSchoolDetail, error)
	FindActiveEnrollment(ctx context.Context, teacherID, schoolID string) (*models.TeacherSchoolEnrollment, error)
	EnrollTeacher(ctx context.Context, enrollment *models.TeacherSchoolEnrollment) error
	SetPrimary(ctx context.Context, teacherID, enrollmentID string) error
}

// SchoolService handles school administration and teacher enrollment.
type SchoolService struct {
	repo      schoolStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchoolService constructs a SchoolService.
func NewSchoolService(repo schoolStore, validate *validator.Validate, logger *zap.Logger) *SchoolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolService{repo: repo, validator: validate, logger: logger}
}

// List returns schools matching the filter.
func (s *SchoolService) List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error) {
	schools, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schools")
	}
	return schools, total, nil
}

// Get returns a single school.
func (s *SchoolService) Get(ctx context.Context, id string) (*models.School, error) {
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

// Create registers a new school. Codes are unique across the system.
func (s *SchoolService) Create(ctx context.Context, req dto.CreateSchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}

	exists, err := s.repo.CodeExists(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check school code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "school code already in use")
	}

	now := time.Now().UTC()
	school := &models.School{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Code:          req.Code,
		Address:       req.Address,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		AllowedRadius: req.AllowedRadius,
		Status:        models.SchoolStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school")
	}

	s.logger.Info("school created", zap.String("school_id", school.ID), zap.String("code", school.Code))
	return school, nil
}

// Update edits a school's mutable fields.
func (s *SchoolService) Update(ctx context.Context, id string, req dto.UpdateSchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}

	school, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	school.Name = req.Name
	school.Address = req.Address
	school.Latitude = req.Latitude
	school.Longitude = req.Longitude
	school.AllowedRadius = req.AllowedRadius
	school.Status = models.SchoolStatus(req.Status)
	school.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update school")
	}
	return school, nil
}

// MySchools returns the schools a teacher is enrolled in.
func (s *SchoolService) MySchools(ctx context.Context, teacherID string) ([]models.TeacherSchoolDetail, error) {
	schools, err := s.repo.ListTeacherSchools(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return schools, nil
}

// Enroll registers a teacher at a school. The first enrollment becomes the
// teacher's primary school automatically.
func (s *SchoolService) Enroll(ctx context.Context, teacherID string, req dto.EnrollSchoolRequest) (*models.TeacherSchoolEnrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	school, err := s.Get(ctx, req.SchoolID)
	if err != nil {
		return nil, err
	}
	if school.Status != models.SchoolStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "school is inactive")
	}

	existing, err := s.repo.FindActiveEnrollment(ctx, teacherID, req.SchoolID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled at this school")
	}

	current, err := s.repo.ListTeacherSchools(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	enrollment := &models.TeacherSchoolEnrollment{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		SchoolID:  req.SchoolID,
		IsPrimary: len(current) == 0,
		Status:    models.SchoolEnrollmentActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.EnrollTeacher(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll teacher")
	}

	s.logger.Info("teacher enrolled",
		zap.String("teacher_id", teacherID),
		zap.String("school_id", req.SchoolID),
		zap.Bool("primary", enrollment.IsPrimary))
	return enrollment, nil
}

// SetPrimary marks one enrollment as the teacher's primary school, demoting
// any previous primary.
func (s *SchoolService) SetPrimary(ctx context.Context, teacherID, enrollmentID string) error {
	if err := s.repo.SetPrimary(ctx, teacherID, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set primary school")
	}
	return nil
}
