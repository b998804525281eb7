package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

// SubmissionRepository persists objective submissions and drives their status
// pipeline. Transitions go through UpdateStatus, which re-checks the current
// state under lock so the forward-only pipeline survives concurrent writers.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `id, exam_id, student_id, status, answer_file_path, ocr_text, ocr_confidence, scored_marks, submitted_at, graded_at`

// FindByID returns a submission by its ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.ObjectiveSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM objective_submissions WHERE id = $1`, submissionColumns)
	var submission models.ObjectiveSubmission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByExamAndStudent returns the student's submission for an exam, if any.
func (r *SubmissionRepository) FindByExamAndStudent(ctx context.Context, examID, studentID string) (*models.ObjectiveSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM objective_submissions WHERE exam_id = $1 AND student_id = $2`, submissionColumns)
	var submission models.ObjectiveSubmission
	if err := r.db.GetContext(ctx, &submission, query, examID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// List returns submissions matching the filter, joined with student identity.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.ExamID != "" {
		conditions = append(conditions, fmt.Sprintf("s.exam_id = $%d", argIndex))
		args = append(args, filter.ExamID)
		argIndex++
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", argIndex))
		args = append(args, filter.StudentID)
		argIndex++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM objective_submissions s %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	query := fmt.Sprintf(`SELECT s.id, s.exam_id, s.student_id, s.status, s.answer_file_path, s.ocr_text,
        s.ocr_confidence, s.scored_marks, s.submitted_at, s.graded_at,
        u.name AS student_name, u.email AS student_email
        FROM objective_submissions s
        JOIN users u ON u.id = s.student_id
        %s ORDER BY s.submitted_at ASC LIMIT $%d OFFSET $%d`, whereClause, argIndex, argIndex+1)
	args = append(args, filter.PageSize, offset)

	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, total, nil
}

// Create inserts a new submission in pending state.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.ObjectiveSubmission) error {
	const query = `INSERT INTO objective_submissions (id, exam_id, student_id, status, answer_file_path, scored_marks, submitted_at)
        VALUES (:id, :exam_id, :student_id, :status, :answer_file_path, :scored_marks, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// UpdateStatus transitions the submission, validating the move against the
// row's current state under lock. Illegal moves return ErrInvalidTransition.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id string, to models.SubmissionStatus) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.SubmissionStatus
	const lockQuery = `SELECT status FROM objective_submissions WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return fmt.Errorf("lock submission: %w", err)
	}

	if !models.CanTransitionSubmission(current, to) {
		err = appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("submission cannot move from %s to %s", current, to))
		return err
	}

	const updateQuery = `UPDATE objective_submissions SET status = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, id, to); err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

// SaveOCRResult records successful text extraction and moves the submission
// to ocr_complete in one step.
func (r *SubmissionRepository) SaveOCRResult(ctx context.Context, id, text string, confidence float64) error {
	const query = `UPDATE objective_submissions
        SET status = $2, ocr_text = $3, ocr_confidence = $4
        WHERE id = $1 AND status = 'ocr_processing'`
	result, err := r.db.ExecContext(ctx, query, id, models.SubmissionStatusOCRComplete, text, confidence)
	if err != nil {
		return fmt.Errorf("save ocr result: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save ocr result: %w", err)
	}
	if rows == 0 {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "submission is not awaiting OCR")
	}
	return nil
}

// ResultsForExam returns the per-student outcome rows for an exam, graded or
// not, ordered by student name.
func (r *SubmissionRepository) ResultsForExam(ctx context.Context, examID string) ([]dto.ExamResultRow, error) {
	const query = `SELECT s.id AS submission_id, s.student_id, u.name AS student_name,
        s.status, s.scored_marks, s.graded_at
        FROM objective_submissions s
        JOIN users u ON u.id = s.student_id
        WHERE s.exam_id = $1
        ORDER BY u.name ASC`
	var rows []dto.ExamResultRow
	if err := r.db.SelectContext(ctx, &rows, query, examID); err != nil {
		return nil, fmt.Errorf("exam results: %w", err)
	}
	return rows, nil
}
