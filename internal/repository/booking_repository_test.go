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

	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

func newBookingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
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

var slotColumns = []string{"id", "school_id", "slot_date", "start_time", "end_time", "teachers_required", "teachers_enrolled", "status", "created_at", "updated_at"}

func slotRow(enrolled, required int, status string) *sqlmock.Rows {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(slotColumns).
		AddRow("slot-1", "school-1", time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), "08:00", "12:00", required, enrolled, status, now, now)
}

func TestBookingRepositoryBook(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM teaching_slots WHERE id = $1 FOR UPDATE")).
		WithArgs("slot-1").
		WillReturnRows(slotRow(1, 3, "partially_filled"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM slot_bookings WHERE slot_id = $1 AND teacher_id = $2")).
		WithArgs("slot-1", "teacher-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM slot_bookings b")).
		WithArgs("teacher-1", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slot_bookings")).
		WithArgs(sqlmock.AnyArg(), "slot-1", "teacher-1", "booked", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_slots SET teachers_enrolled = $2, status = $3")).
		WithArgs("slot-1", 2, "partially_filled", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO teaching_sessions")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "pending", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	booking, err := repo.Book(context.Background(), "slot-1", "teacher-1", now)
	require.NoError(t, err)
	assert.Equal(t, "slot-1", booking.SlotID)
	assert.Equal(t, "teacher-1", booking.TeacherID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryBookFillsSlot(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("slot-1").
		WillReturnRows(slotRow(2, 3, "partially_filled"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM slot_bookings WHERE slot_id = $1")).
		WithArgs("slot-1", "teacher-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM slot_bookings b")).
		WithArgs("teacher-1", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slot_bookings")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_slots")).
		WithArgs("slot-1", 3, "full", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO teaching_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := repo.Book(context.Background(), "slot-1", "teacher-1", now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryBookSlotFull(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("slot-1").
		WillReturnRows(slotRow(3, 3, "full"))
	mock.ExpectRollback()

	_, err := repo.Book(context.Background(), "slot-1", "teacher-1", time.Now())
	assert.ErrorIs(t, err, appErrors.ErrSlotFull)
}

func TestBookingRepositoryBookSlotClosed(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("slot-1").
		WillReturnRows(slotRow(1, 3, "cancelled"))
	mock.ExpectRollback()

	_, err := repo.Book(context.Background(), "slot-1", "teacher-1", time.Now())
	assert.ErrorIs(t, err, appErrors.ErrSlotClosed)
}

func TestBookingRepositoryBookDuplicate(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("slot-1").
		WillReturnRows(slotRow(1, 3, "partially_filled"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM slot_bookings WHERE slot_id = $1")).
		WithArgs("slot-1", "teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Book(context.Background(), "slot-1", "teacher-1", time.Now())
	assert.ErrorIs(t, err, appErrors.ErrAlreadyBooked)
}

func TestBookingRepositoryBookActiveElsewhere(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("slot-1").
		WillReturnRows(slotRow(0, 3, "open"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM slot_bookings WHERE slot_id = $1")).
		WithArgs("slot-1", "teacher-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM slot_bookings b")).
		WithArgs("teacher-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Book(context.Background(), "slot-1", "teacher-1", time.Now())
	assert.ErrorIs(t, err, appErrors.ErrActiveBooking)
}

var cancelLockColumns = []string{"id", "slot_id", "teacher_id", "status", "cancellation_reason", "cancelled_at", "created_at",
	"slot_date", "start_time", "slot_status", "teachers_required", "teachers_enrolled"}

func cancelLockRow(teacherID, status string, slotDate time.Time, startTime string, enrolled int) *sqlmock.Rows {
	created := time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(cancelLockColumns).
		AddRow("booking-1", "slot-1", teacherID, status, nil, nil, created,
			slotDate, startTime, "partially_filled", 3, enrolled)
}

func TestBookingRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	slotDate := time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE b.id = $1 FOR UPDATE")).
		WithArgs("booking-1").
		WillReturnRows(cancelLockRow("teacher-1", "booked", slotDate, "08:00", 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slot_bookings SET status = $2")).
		WithArgs("booking-1", "cancelled", "schedule conflict", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_slots SET teachers_enrolled = $2")).
		WithArgs("slot-1", 1, "partially_filled", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_sessions SET status = $2")).
		WithArgs("booking-1", "rejected", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "booking-1",
		TeacherID: "teacher-1",
		Reason:    "schedule conflict",
		Now:       now,
		Deadline:  24 * time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCancelLastTeacherReopensSlot(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	slotDate := time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("booking-1").
		WillReturnRows(cancelLockRow("teacher-1", "booked", slotDate, "08:00", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slot_bookings")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_slots")).
		WithArgs("slot-1", 0, "open", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "booking-1",
		TeacherID: "teacher-1",
		Reason:    "family emergency",
		Now:       now,
		Deadline:  24 * time.Hour,
	})
	require.NoError(t, err)
}

func TestBookingRepositoryCancelWrongOwner(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("booking-1").
		WillReturnRows(cancelLockRow("teacher-2", "booked", time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC), "08:00", 2))
	mock.ExpectRollback()

	err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "booking-1",
		TeacherID: "teacher-1",
		Reason:    "mistake",
		Now:       time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		Deadline:  24 * time.Hour,
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestBookingRepositoryCancelAlreadyCancelled(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("booking-1").
		WillReturnRows(cancelLockRow("teacher-1", "cancelled", time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC), "08:00", 2))
	mock.ExpectRollback()

	err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "booking-1",
		TeacherID: "teacher-1",
		Reason:    "again",
		Now:       time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		Deadline:  24 * time.Hour,
	})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyCancelled)
}

func TestBookingRepositoryCancelPastBooking(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("booking-1").
		WillReturnRows(cancelLockRow("teacher-1", "booked", time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), "08:00", 2))
	mock.ExpectRollback()

	err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "booking-1",
		TeacherID: "teacher-1",
		Reason:    "too late",
		Now:       time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		Deadline:  24 * time.Hour,
	})
	assert.ErrorIs(t, err, appErrors.ErrPastBooking)
}

func TestBookingRepositoryCancelWithinWindow(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	// slot starts in four hours, inside the 24h window
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	slotDate := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("booking-1").
		WillReturnRows(cancelLockRow("teacher-1", "booked", slotDate, "12:00", 2))
	mock.ExpectRollback()

	err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "booking-1",
		TeacherID: "teacher-1",
		Reason:    "cold feet",
		Now:       now,
		Deadline:  24 * time.Hour,
	})
	assert.ErrorIs(t, err, appErrors.ErrCancellationWindow)
}

func TestBookingRepositoryCancelExactlyAtDeadline(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	// slot starts in exactly 24h; the window is strict so this passes
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	slotDate := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("booking-1").
		WillReturnRows(cancelLockRow("teacher-1", "booked", slotDate, "08:00", 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slot_bookings")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_slots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "booking-1",
		TeacherID: "teacher-1",
		Reason:    "on the line",
		Now:       now,
		Deadline:  24 * time.Hour,
	})
	require.NoError(t, err)
}

func TestBookingRepositoryCancelNotFound(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("booking-missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "booking-missing",
		TeacherID: "teacher-1",
		Reason:    "gone",
		Now:       time.Now(),
		Deadline:  24 * time.Hour,
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
