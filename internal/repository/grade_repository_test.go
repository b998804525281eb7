package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

func newGradeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestGradeRepositorySaveManualGrades(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM objective_submissions WHERE id = $1 FOR UPDATE")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("ocr_complete"))
	// fresh question, no prior AI score: method manual
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ai_score FROM answer_grades")).
		WithArgs("sub-1", "question-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO answer_grades")).
		WithArgs(sqlmock.AnyArg(), "sub-1", "question-1", 8.0, nil, 8.0, "manual", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(final_score), 0)")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(8.0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE objective_submissions SET status = $2, scored_marks = $3, graded_at = $4")).
		WithArgs("sub-1", "graded", 8.0, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	scored, err := repo.SaveManualGrades(context.Background(), "sub-1", []ManualGradeParams{
		{QuestionID: "question-1", Score: 8},
	}, nil, now)
	require.NoError(t, err)
	assert.Equal(t, 8.0, scored)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositorySaveManualGradesOverridesAI(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("graded"))
	// an AI score already exists: method becomes ai_override
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ai_score FROM answer_grades")).
		WithArgs("sub-1", "question-1").
		WillReturnRows(sqlmock.NewRows([]string{"ai_score"}).AddRow(6.5))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO answer_grades")).
		WithArgs(sqlmock.AnyArg(), "sub-1", "question-1", 9.0, nil, 9.0, "ai_override", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(final_score), 0)")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(9.0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE objective_submissions")).
		WithArgs("sub-1", "graded", 9.0, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	scored, err := repo.SaveManualGrades(context.Background(), "sub-1", []ManualGradeParams{
		{QuestionID: "question-1", Score: 9},
	}, []models.SubmissionStatus{models.SubmissionStatusGraded, models.SubmissionStatusError}, now)
	require.NoError(t, err)
	assert.Equal(t, 9.0, scored)
}

func TestGradeRepositorySaveManualGradesSubmissionMissing(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("sub-missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.SaveManualGrades(context.Background(), "sub-missing", nil, nil, time.Now())
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestGradeRepositorySaveManualGradesRequeuedSubmission(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	// the submission slipped back into the machine pipeline between the
	// caller's read and the lock
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("ocr_processing"))
	mock.ExpectRollback()

	_, err := repo.SaveManualGrades(context.Background(), "sub-1", []ManualGradeParams{
		{QuestionID: "question-1", Score: 8},
	}, []models.SubmissionStatus{models.SubmissionStatusGraded, models.SubmissionStatusError}, time.Now())
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrGradingInProgress.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositorySaveAIGrades(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	confidence := 0.92

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("grading"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO answer_grades")).
		WithArgs(sqlmock.AnyArg(), "sub-1", "question-1", 7.5, nil, confidence, 7.5, "ai", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(final_score), 0)")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(7.5))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE objective_submissions")).
		WithArgs("sub-1", "graded", 7.5, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	scored, err := repo.SaveAIGrades(context.Background(), "sub-1", []AIGradeParams{
		{QuestionID: "question-1", Score: 7.5, Confidence: &confidence},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 7.5, scored)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositorySaveAIGradesWrongState(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectRollback()

	_, err := repo.SaveAIGrades(context.Background(), "sub-1", nil, time.Now())
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}
