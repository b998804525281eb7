package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

// ExamRepository persists objective exams and their questions. Question
// numbering is managed here so the sequence stays contiguous: new questions
// are appended at the next free number and deletions renumber the tail inside
// one transaction.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs the repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// List returns exams matching the filter with total count.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.ObjectiveExam, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", argIndex))
		args = append(args, filter.TeacherID)
		argIndex++
	}
	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", argIndex))
		args = append(args, filter.SchoolID)
		argIndex++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM objective_exams %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "exam_date"
	}
	allowedSorts := map[string]bool{
		"exam_date":           true,
		"submission_deadline": true,
		"title":               true,
		"created_at":          true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "exam_date"
	}
	sortOrder := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	offset := (filter.Page - 1) * filter.PageSize
	query := fmt.Sprintf(`SELECT id, teacher_id, school_id, title, grading_mode, total_marks, passing_marks,
        exam_date, submission_deadline, duration_minutes, status, created_at, updated_at
        FROM objective_exams %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		whereClause, sortBy, sortOrder, argIndex, argIndex+1)
	args = append(args, filter.PageSize, offset)

	var exams []models.ObjectiveExam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}
	return exams, total, nil
}

// FindByID returns an exam by its ID.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.ObjectiveExam, error) {
	const query = `SELECT id, teacher_id, school_id, title, grading_mode, total_marks, passing_marks,
        exam_date, submission_deadline, duration_minutes, status, created_at, updated_at
        FROM objective_exams WHERE id = $1`
	var exam models.ObjectiveExam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// Create inserts a new exam in draft state.
func (r *ExamRepository) Create(ctx context.Context, exam *models.ObjectiveExam) error {
	const query = `INSERT INTO objective_exams (id, teacher_id, school_id, title, grading_mode, total_marks,
        passing_marks, exam_date, submission_deadline, duration_minutes, status, created_at, updated_at)
        VALUES (:id, :teacher_id, :school_id, :title, :grading_mode, :total_marks,
        :passing_marks, :exam_date, :submission_deadline, :duration_minutes, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// Update persists the mutable exam fields. grading_mode is deliberately
// absent: it is fixed at creation.
func (r *ExamRepository) Update(ctx context.Context, exam *models.ObjectiveExam) error {
	const query = `UPDATE objective_exams
        SET title = :title, total_marks = :total_marks, passing_marks = :passing_marks,
            exam_date = :exam_date, submission_deadline = :submission_deadline,
            duration_minutes = :duration_minutes, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

// UpdateStatus moves an exam to a new status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id string, status models.ExamStatus) error {
	const query = `UPDATE objective_exams SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now()); err != nil {
		return fmt.Errorf("update exam status: %w", err)
	}
	return nil
}

// CountQuestions returns how many questions the exam has.
func (r *ExamRepository) CountQuestions(ctx context.Context, examID string) (int, error) {
	const query = `SELECT COUNT(*) FROM objective_questions WHERE exam_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, examID); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return count, nil
}

// ListQuestions returns the exam's questions in numbering order.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID string) ([]models.ObjectiveQuestion, error) {
	const query = `SELECT id, exam_id, question_number, question_text, max_marks, answer_key_text, created_at
        FROM objective_questions WHERE exam_id = $1 ORDER BY question_number ASC`
	var questions []models.ObjectiveQuestion
	if err := r.db.SelectContext(ctx, &questions, query, examID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// FindQuestionByID returns a single question.
func (r *ExamRepository) FindQuestionByID(ctx context.Context, id string) (*models.ObjectiveQuestion, error) {
	const query = `SELECT id, exam_id, question_number, question_text, max_marks, answer_key_text, created_at
        FROM objective_questions WHERE id = $1`
	var question models.ObjectiveQuestion
	if err := r.db.GetContext(ctx, &question, query, id); err != nil {
		return nil, err
	}
	return &question, nil
}

// CreateQuestion appends a question at the next free number. The exam's
// question set is locked first so two concurrent inserts cannot claim the
// same number.
func (r *ExamRepository) CreateQuestion(ctx context.Context, question *models.ObjectiveQuestion) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin question insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var examID string
	const lockQuery = `SELECT id FROM objective_exams WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &examID, lockQuery, question.ExamID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return fmt.Errorf("lock exam: %w", err)
	}

	var next int
	const nextQuery = `SELECT COALESCE(MAX(question_number), 0) + 1 FROM objective_questions WHERE exam_id = $1`
	if err = tx.GetContext(ctx, &next, nextQuery, question.ExamID); err != nil {
		return fmt.Errorf("next question number: %w", err)
	}
	question.QuestionNumber = next

	const insertQuery = `INSERT INTO objective_questions (id, exam_id, question_number, question_text, max_marks, answer_key_text, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, insertQuery,
		question.ID, question.ExamID, question.QuestionNumber,
		question.QuestionText, question.MaxMarks, question.AnswerKeyText, question.CreatedAt); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit question insert: %w", err)
	}
	return nil
}

// UpdateQuestion persists question text, marks and answer key. The number is
// never changed through this path.
func (r *ExamRepository) UpdateQuestion(ctx context.Context, question *models.ObjectiveQuestion) error {
	const query = `UPDATE objective_questions
        SET question_text = $2, max_marks = $3, answer_key_text = $4
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query,
		question.ID, question.QuestionText, question.MaxMarks, question.AnswerKeyText); err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

// DeleteQuestion removes a question and shifts every later question down by
// one, keeping the numbering contiguous. Both steps run in one transaction.
func (r *ExamRepository) DeleteQuestion(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin question delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var deleted struct {
		ExamID         string `db:"exam_id"`
		QuestionNumber int    `db:"question_number"`
	}
	const deleteQuery = `DELETE FROM objective_questions WHERE id = $1 RETURNING exam_id, question_number`
	if err = tx.GetContext(ctx, &deleted, deleteQuery, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return fmt.Errorf("delete question: %w", err)
	}

	const renumberQuery = `UPDATE objective_questions SET question_number = question_number - 1
        WHERE exam_id = $1 AND question_number > $2`
	if _, err = tx.ExecContext(ctx, renumberQuery, deleted.ExamID, deleted.QuestionNumber); err != nil {
		return fmt.Errorf("renumber questions: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit question delete: %w", err)
	}
	return nil
}
