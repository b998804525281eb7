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
)

func newSchoolRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
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

func TestSchoolRepositoryList(t *testing.T) {
	db, mock, cleanup := newSchoolRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "code", "address", "latitude", "longitude", "allowed_radius", "status", "created_at", "updated_at"}).
		AddRow("school-1", "SDN Melati 1", "MEL01", "Jl. Melati 1", -6.2, 106.8, 200.0, "active", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM schools")).
		WithArgs("active").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schools")).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	schools, total, err := repo.List(context.Background(), models.SchoolFilter{Status: models.SchoolStatusActive, Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, schools, 1)
	assert.Equal(t, "MEL01", schools[0].Code)
}

func TestSchoolRepositoryCodeExists(t *testing.T) {
	db, mock, cleanup := newSchoolRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM schools WHERE code = $1")).
		WithArgs("MEL01").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.CodeExists(context.Background(), "MEL01", "")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSchoolRepositorySetPrimary(t *testing.T) {
	db, mock, cleanup := newSchoolRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT teacher_id FROM teacher_school_enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enroll-2").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id"}).AddRow("teacher-1"))
	mock.ExpectExec(regexp.QuoteMeta("SET is_primary = FALSE WHERE teacher_id = $1 AND is_primary = TRUE")).
		WithArgs("teacher-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_primary = TRUE WHERE id = $1")).
		WithArgs("enroll-2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SetPrimary(context.Background(), "teacher-1", "enroll-2")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositorySetPrimaryWrongOwner(t *testing.T) {
	db, mock, cleanup := newSchoolRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("enroll-2").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id"}).AddRow("teacher-9"))
	mock.ExpectRollback()

	err := repo.SetPrimary(context.Background(), "teacher-1", "enroll-2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
