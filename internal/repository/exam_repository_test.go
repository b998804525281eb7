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

func newExamRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
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

func TestExamRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "school_id", "title", "grading_mode", "total_marks", "passing_marks",
		"exam_date", "submission_deadline", "duration_minutes", "status", "created_at", "updated_at"}).
		AddRow("exam-1", "teacher-1", "school-1", "Matematika Bab 3", "ai", 100.0, 60.0,
			now, now.Add(48*time.Hour), 90, "draft", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM objective_exams WHERE id = $1")).
		WithArgs("exam-1").
		WillReturnRows(rows)

	exam, err := repo.FindByID(context.Background(), "exam-1")
	require.NoError(t, err)
	assert.Equal(t, models.GradingModeAI, exam.GradingMode)
	assert.Equal(t, models.ExamStatusDraft, exam.Status)
}

func TestExamRepositoryListRejectsUnknownSortColumn(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM objective_exams")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "school_id", "title", "grading_mode", "total_marks", "passing_marks",
		"exam_date", "submission_deadline", "duration_minutes", "status", "created_at", "updated_at"}).
		AddRow("exam-1", "teacher-1", "school-1", "Matematika Bab 3", "manual", 100.0, 60.0,
			now, now.Add(48*time.Hour), 90, "active", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY exam_date DESC LIMIT $1 OFFSET $2")).
		WithArgs(20, 0).
		WillReturnRows(rows)

	exams, total, err := repo.List(context.Background(), models.ExamFilter{
		Page:     1,
		PageSize: 20,
		SortBy:   "exam_date; SELECT pg_sleep(10); --",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, exams, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryCreateQuestionAppendsNumber(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM objective_exams WHERE id = $1 FOR UPDATE")).
		WithArgs("exam-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("exam-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(question_number), 0) + 1")).
		WithArgs("exam-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO objective_questions")).
		WithArgs("question-4", "exam-1", 4, "Jelaskan teorema Pythagoras", 10.0, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	question := &models.ObjectiveQuestion{
		ID:           "question-4",
		ExamID:       "exam-1",
		QuestionText: "Jelaskan teorema Pythagoras",
		MaxMarks:     10,
		CreatedAt:    time.Now(),
	}
	err := repo.CreateQuestion(context.Background(), question)
	require.NoError(t, err)
	assert.Equal(t, 4, question.QuestionNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryCreateQuestionExamMissing(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("exam-missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.CreateQuestion(context.Background(), &models.ObjectiveQuestion{ID: "q-1", ExamID: "exam-missing"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestExamRepositoryDeleteQuestionRenumbers(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM objective_questions WHERE id = $1 RETURNING exam_id, question_number")).
		WithArgs("question-2").
		WillReturnRows(sqlmock.NewRows([]string{"exam_id", "question_number"}).AddRow("exam-1", 2))
	mock.ExpectExec(regexp.QuoteMeta("SET question_number = question_number - 1")).
		WithArgs("exam-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.DeleteQuestion(context.Background(), "question-2")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryDeleteQuestionNotFound(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM objective_questions")).
		WithArgs("question-missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.DeleteQuestion(context.Background(), "question-missing")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
