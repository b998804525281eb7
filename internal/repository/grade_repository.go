package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

// ManualGradeParams is one teacher-entered score for a question.
type ManualGradeParams struct {
	QuestionID string
	Score      float64
	Feedback   *string
}

// AIGradeParams is one machine-produced score for a question.
type AIGradeParams struct {
	QuestionID string
	Score      float64
	Feedback   *string
	Confidence *float64
}

// GradeRepository persists per-question answer grades. Saving a grade set is
// transactional: the grade rows, the submission's aggregate score and its
// graded state all change together or not at all.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListBySubmission returns the submission's grade rows keyed by question.
func (r *GradeRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.AnswerGrade, error) {
	const query = `SELECT g.id, g.submission_id, g.question_id, g.ai_score, g.ai_feedback, g.ai_confidence,
        g.manual_score, g.manual_feedback, g.final_score, g.grading_method, g.created_at, g.updated_at
        FROM answer_grades g
        JOIN objective_questions q ON q.id = g.question_id
        WHERE g.submission_id = $1
        ORDER BY q.question_number ASC`
	var grades []models.AnswerGrade
	if err := r.db.SelectContext(ctx, &grades, query, submissionID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// SaveManualGrades upserts teacher-entered scores and finalizes the
// submission. A question that already carries an AI score becomes an
// ai_override; otherwise the method is manual. The aggregate scored_marks is
// recomputed from every final_score in the same transaction, so it can never
// disagree with the rows. When allowedStates is non-empty the submission's
// status is re-checked against it under the row lock, so a submission that
// moved back into the machine pipeline after the caller's read cannot be
// force-graded.
func (r *GradeRepository) SaveManualGrades(ctx context.Context, submissionID string, grades []ManualGradeParams, allowedStates []models.SubmissionStatus, now time.Time) (scoredMarks float64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin grade save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.SubmissionStatus
	const lockQuery = `SELECT status FROM objective_submissions WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &status, lockQuery, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return 0, fmt.Errorf("lock submission: %w", err)
	}
	if len(allowedStates) > 0 {
		permitted := false
		for _, allowed := range allowedStates {
			if status == allowed {
				permitted = true
				break
			}
		}
		if !permitted {
			err = appErrors.ErrGradingInProgress
			return 0, err
		}
	}

	for _, grade := range grades {
		var existingAIScore sql.NullFloat64
		const existingQuery = `SELECT ai_score FROM answer_grades WHERE submission_id = $1 AND question_id = $2`
		gerr := tx.GetContext(ctx, &existingAIScore, existingQuery, submissionID, grade.QuestionID)
		if gerr != nil && gerr != sql.ErrNoRows {
			err = fmt.Errorf("read existing grade: %w", gerr)
			return 0, err
		}

		method := models.GradingMethodManual
		if existingAIScore.Valid {
			method = models.GradingMethodAIOverride
		}

		const upsertQuery = `INSERT INTO answer_grades (id, submission_id, question_id, manual_score, manual_feedback, final_score, grading_method, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
            ON CONFLICT (submission_id, question_id) DO UPDATE
            SET manual_score = EXCLUDED.manual_score, manual_feedback = EXCLUDED.manual_feedback,
                final_score = EXCLUDED.final_score, grading_method = EXCLUDED.grading_method,
                updated_at = EXCLUDED.updated_at`
		if _, err = tx.ExecContext(ctx, upsertQuery,
			uuid.NewString(), submissionID, grade.QuestionID,
			grade.Score, grade.Feedback, grade.Score, method, now); err != nil {
			return 0, fmt.Errorf("upsert grade: %w", err)
		}
	}

	const sumQuery = `SELECT COALESCE(SUM(final_score), 0) FROM answer_grades WHERE submission_id = $1`
	if err = tx.GetContext(ctx, &scoredMarks, sumQuery, submissionID); err != nil {
		return 0, fmt.Errorf("sum grades: %w", err)
	}

	const finalizeQuery = `UPDATE objective_submissions SET status = $2, scored_marks = $3, graded_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, finalizeQuery, submissionID, models.SubmissionStatusGraded, scoredMarks, now); err != nil {
		return 0, fmt.Errorf("finalize submission: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit grade save: %w", err)
	}
	return scoredMarks, nil
}

// SaveAIGrades records the machine grading pass. The submission must be in
// the grading state; the whole batch lands with method ai and the submission
// is finalized with the recomputed aggregate.
func (r *GradeRepository) SaveAIGrades(ctx context.Context, submissionID string, grades []AIGradeParams, now time.Time) (scoredMarks float64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ai grade save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.SubmissionStatus
	const lockQuery = `SELECT status FROM objective_submissions WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &status, lockQuery, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return 0, fmt.Errorf("lock submission: %w", err)
	}
	if status != models.SubmissionStatusGrading {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, "submission is not being graded")
		return 0, err
	}

	for _, grade := range grades {
		const upsertQuery = `INSERT INTO answer_grades (id, submission_id, question_id, ai_score, ai_feedback, ai_confidence, final_score, grading_method, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
            ON CONFLICT (submission_id, question_id) DO UPDATE
            SET ai_score = EXCLUDED.ai_score, ai_feedback = EXCLUDED.ai_feedback,
                ai_confidence = EXCLUDED.ai_confidence, final_score = EXCLUDED.final_score,
                grading_method = EXCLUDED.grading_method, updated_at = EXCLUDED.updated_at`
		if _, err = tx.ExecContext(ctx, upsertQuery,
			uuid.NewString(), submissionID, grade.QuestionID,
			grade.Score, grade.Feedback, grade.Confidence,
			grade.Score, models.GradingMethodAI, now); err != nil {
			return 0, fmt.Errorf("upsert ai grade: %w", err)
		}
	}

	const sumQuery = `SELECT COALESCE(SUM(final_score), 0) FROM answer_grades WHERE submission_id = $1`
	if err = tx.GetContext(ctx, &scoredMarks, sumQuery, submissionID); err != nil {
		return 0, fmt.Errorf("sum grades: %w", err)
	}

	const finalizeQuery = `UPDATE objective_submissions SET status = $2, scored_marks = $3, graded_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, finalizeQuery, submissionID, models.SubmissionStatusGraded, scoredMarks, now); err != nil {
		return 0, fmt.Errorf("finalize submission: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ai grade save: %w", err)
	}
	return scoredMarks, nil
}
