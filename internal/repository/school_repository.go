package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/guru-portal-api/internal/models"
)

// SchoolRepository handles persistence of schools and teacher enrollments.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs the repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// List returns schools filtered by the provided criteria.
func (r *SchoolRepository) List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error) {
	base := `FROM schools WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "name",
		"code":       "code",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, name, code, address, latitude, longitude, allowed_radius, status, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schools: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schools: %w", err)
	}
	return schools, total, nil
}

// FindByID returns a school by its ID.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	const query = `SELECT id, name, code, address, latitude, longitude, allowed_radius, status, created_at, updated_at FROM schools WHERE id = $1`
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// CodeExists checks code uniqueness, optionally excluding a school.
func (r *SchoolRepository) CodeExists(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM schools WHERE code = $1"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check school code: %w", err)
	}
	return true, nil
}

// Create persists a new school record.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if school.CreatedAt.IsZero() {
		school.CreatedAt = now
	}
	school.UpdatedAt = now
	if school.Status == "" {
		school.Status = models.SchoolStatusActive
	}
	const query = `INSERT INTO schools (id, name, code, address, latitude, longitude, allowed_radius, status, created_at, updated_at)
        VALUES (:id, :name, :code, :address, :latitude, :longitude, :allowed_radius, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}

// Update updates mutable fields of a school.
func (r *SchoolRepository) Update(ctx context.Context, school *models.School) error {
	school.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schools SET name = :name, address = :address, latitude = :latitude, longitude = :longitude,
        allowed_radius = :allowed_radius, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("update school: %w", err)
	}
	return nil
}

// ListTeacherSchools returns all school enrollments for a teacher.
func (r *SchoolRepository) ListTeacherSchools(ctx context.Context, teacherID string) ([]models.TeacherSchoolDetail, error) {
	const query = `SELECT e.id, e.teacher_id, e.school_id, e.is_primary, e.status, e.created_at,
        s.name AS school_name, s.code AS school_code
        FROM teacher_school_enrollments e
        JOIN schools s ON s.id = e.school_id
        WHERE e.teacher_id = $1
        ORDER BY e.is_primary DESC, s.name ASC`
	var enrollments []models.TeacherSchoolDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher schools: %w", err)
	}
	return enrollments, nil
}

// FindActiveEnrollment returns a teacher's active enrollment at a school.
func (r *SchoolRepository) FindActiveEnrollment(ctx context.Context, teacherID, schoolID string) (*models.TeacherSchoolEnrollment, error) {
	const query = `SELECT id, teacher_id, school_id, is_primary, status, created_at
        FROM teacher_school_enrollments
        WHERE teacher_id = $1 AND school_id = $2 AND status = $3 LIMIT 1`
	var enrollment models.TeacherSchoolEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, teacherID, schoolID, models.SchoolEnrollmentActive); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// EnrollTeacher links a teacher to a school.
func (r *SchoolRepository) EnrollTeacher(ctx context.Context, enrollment *models.TeacherSchoolEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.SchoolEnrollmentActive
	}
	const query = `INSERT INTO teacher_school_enrollments (id, teacher_id, school_id, is_primary, status, created_at)
        VALUES (:id, :teacher_id, :school_id, :is_primary, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("enroll teacher: %w", err)
	}
	return nil
}

// SetPrimary flags one enrollment as the teacher's primary school, demoting
// any previous primary in the same transaction so the at-most-one invariant
// holds at commit.
func (r *SchoolRepository) SetPrimary(ctx context.Context, teacherID, enrollmentID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set primary: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var owner string
	const lockQuery = `SELECT teacher_id FROM teacher_school_enrollments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &owner, lockQuery, enrollmentID); err != nil {
		return err
	}
	if owner != teacherID {
		return sql.ErrNoRows
	}

	const demoteQuery = `UPDATE teacher_school_enrollments SET is_primary = FALSE WHERE teacher_id = $1 AND is_primary = TRUE`
	if _, err = tx.ExecContext(ctx, demoteQuery, teacherID); err != nil {
		return fmt.Errorf("demote primary enrollment: %w", err)
	}

	const promoteQuery = `UPDATE teacher_school_enrollments SET is_primary = TRUE WHERE id = $1`
	if _, err = tx.ExecContext(ctx, promoteQuery, enrollmentID); err != nil {
		return fmt.Errorf("promote primary enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set primary: %w", err)
	}
	return nil
}
