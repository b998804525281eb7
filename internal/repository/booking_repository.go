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

// BookingRepository owns the slot reservation lifecycle. Booking and
// cancellation run as single transactions with the slot (and booking) rows
// locked FOR UPDATE, so the capacity counter and derived slot status can
// never drift from the enrollment rows under concurrent requests.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// FindByID returns a booking by its ID.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.SlotBooking, error) {
	const query = `SELECT id, slot_id, teacher_id, status, cancellation_reason, cancelled_at, created_at FROM slot_bookings WHERE id = $1`
	var booking models.SlotBooking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListForTeacher returns a teacher's bookings with slot and school context.
func (r *BookingRepository) ListForTeacher(ctx context.Context, teacherID string) ([]models.SlotBookingDetail, error) {
	const query = `SELECT b.id, b.slot_id, b.teacher_id, b.status, b.cancellation_reason, b.cancelled_at, b.created_at,
        t.slot_date, t.start_time, t.end_time, t.status AS slot_status, t.school_id, sc.name AS school_name
        FROM slot_bookings b
        JOIN teaching_slots t ON t.id = b.slot_id
        JOIN schools sc ON sc.id = t.school_id
        WHERE b.teacher_id = $1
        ORDER BY t.slot_date DESC, t.start_time DESC`
	var bookings []models.SlotBookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher bookings: %w", err)
	}
	return bookings, nil
}

// FindActiveForTeacher returns the teacher's current active booking: status
// booked, slot dated today or later and not completed/cancelled. The check
// is system-wide across schools.
func (r *BookingRepository) FindActiveForTeacher(ctx context.Context, teacherID string, today time.Time) (*models.SlotBookingDetail, error) {
	const query = `SELECT b.id, b.slot_id, b.teacher_id, b.status, b.cancellation_reason, b.cancelled_at, b.created_at,
        t.slot_date, t.start_time, t.end_time, t.status AS slot_status, t.school_id, sc.name AS school_name
        FROM slot_bookings b
        JOIN teaching_slots t ON t.id = b.slot_id
        JOIN schools sc ON sc.id = t.school_id
        WHERE b.teacher_id = $1 AND b.status = 'booked'
          AND t.status NOT IN ('completed', 'cancelled') AND t.slot_date >= $2
        LIMIT 1`
	var booking models.SlotBookingDetail
	if err := r.db.GetContext(ctx, &booking, query, teacherID, today); err != nil {
		return nil, err
	}
	return &booking, nil
}

// Book reserves one spot in the slot for the teacher. The slot row is locked
// first; every eligibility rule is then evaluated against the locked state so
// two requests racing for the last spot cannot both succeed. The capacity
// counter and derived status are updated in the same transaction, and the
// pending teaching session is created alongside the booking.
func (r *BookingRepository) Book(ctx context.Context, slotID, teacherID string, now time.Time) (booking *models.SlotBooking, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin booking: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var slot models.TeachingSlot
	const lockQuery = `SELECT id, school_id, slot_date, start_time, end_time, teachers_required, teachers_enrolled, status, created_at, updated_at
        FROM teaching_slots WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &slot, lockQuery, slotID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	if slot.Status == models.SlotStatusCompleted || slot.Status == models.SlotStatusCancelled {
		err = appErrors.ErrSlotClosed
		return nil, err
	}
	if slot.TeachersEnrolled >= slot.TeachersRequired {
		err = appErrors.ErrSlotFull
		return nil, err
	}

	var exists int
	const dupQuery = `SELECT 1 FROM slot_bookings WHERE slot_id = $1 AND teacher_id = $2 AND status = 'booked' LIMIT 1`
	if err = tx.GetContext(ctx, &exists, dupQuery, slotID, teacherID); err == nil {
		err = appErrors.ErrAlreadyBooked
		return nil, err
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check duplicate booking: %w", err)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	const activeQuery = `SELECT 1 FROM slot_bookings b
        JOIN teaching_slots t ON t.id = b.slot_id
        WHERE b.teacher_id = $1 AND b.status = 'booked'
          AND t.status NOT IN ('completed', 'cancelled') AND t.slot_date >= $2
        LIMIT 1`
	if err = tx.GetContext(ctx, &exists, activeQuery, teacherID, today); err == nil {
		err = appErrors.ErrActiveBooking
		return nil, err
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check active booking: %w", err)
	}
	err = nil

	booking = &models.SlotBooking{
		ID:        uuid.NewString(),
		SlotID:    slotID,
		TeacherID: teacherID,
		Status:    models.BookingStatusBooked,
		CreatedAt: now,
	}
	const insertQuery = `INSERT INTO slot_bookings (id, slot_id, teacher_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, insertQuery, booking.ID, booking.SlotID, booking.TeacherID, booking.Status, booking.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	enrolled := slot.TeachersEnrolled + 1
	status := models.DeriveSlotStatus(enrolled, slot.TeachersRequired)
	const updateSlotQuery = `UPDATE teaching_slots SET teachers_enrolled = $2, status = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateSlotQuery, slotID, enrolled, status, now); err != nil {
		return nil, fmt.Errorf("update slot capacity: %w", err)
	}

	const insertSessionQuery = `INSERT INTO teaching_sessions (id, booking_id, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)`
	if _, err = tx.ExecContext(ctx, insertSessionQuery, uuid.NewString(), booking.ID, models.SessionStatusPending, now); err != nil {
		return nil, fmt.Errorf("insert teaching session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	return booking, nil
}

// CancelParams carries the inputs of a cancellation attempt.
type CancelParams struct {
	BookingID string
	TeacherID string
	Reason    string
	Now       time.Time
	Deadline  time.Duration
}

type lockedBooking struct {
	models.SlotBooking
	SlotDate         time.Time         `db:"slot_date"`
	StartTime        string            `db:"start_time"`
	SlotStatus       models.SlotStatus `db:"slot_status"`
	TeachersRequired int               `db:"teachers_required"`
	TeachersEnrolled int               `db:"teachers_enrolled"`
}

// Cancel transitions a booking from booked to cancelled. The booking row and
// its slot are locked before any rule is evaluated; the capacity counter and
// slot status are reclaimed in the same transaction and the associated
// session is rejected. Any rule violation rolls the whole sequence back.
func (r *BookingRepository) Cancel(ctx context.Context, params CancelParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancellation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked lockedBooking
	const lockQuery = `SELECT b.id, b.slot_id, b.teacher_id, b.status, b.cancellation_reason, b.cancelled_at, b.created_at,
        t.slot_date, t.start_time, t.status AS slot_status, t.teachers_required, t.teachers_enrolled
        FROM slot_bookings b
        JOIN teaching_slots t ON t.id = b.slot_id
        WHERE b.id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &locked, lockQuery, params.BookingID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return fmt.Errorf("lock booking: %w", err)
	}

	if locked.TeacherID != params.TeacherID {
		err = appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another teacher")
		return err
	}
	if locked.Status != models.BookingStatusBooked {
		err = appErrors.ErrAlreadyCancelled
		return err
	}

	now := params.Now
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	slotDay := time.Date(locked.SlotDate.Year(), locked.SlotDate.Month(), locked.SlotDate.Day(), 0, 0, 0, 0, time.UTC)
	if slotDay.Before(today) {
		err = appErrors.ErrPastBooking
		return err
	}

	slot := models.TeachingSlot{SlotDate: locked.SlotDate, StartTime: locked.StartTime}
	start, serr := slot.StartDateTime(time.UTC)
	if serr != nil {
		err = fmt.Errorf("resolve slot start: %w", serr)
		return err
	}
	// The window only applies before the slot starts; once the slot is
	// underway the past-booking rule governs instead.
	if delta := start.Sub(now); delta > 0 && delta < params.Deadline {
		err = appErrors.ErrCancellationWindow
		return err
	}

	const cancelQuery = `UPDATE slot_bookings SET status = $2, cancellation_reason = $3, cancelled_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, cancelQuery, params.BookingID, models.BookingStatusCancelled, params.Reason, now); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}

	if locked.SlotStatus != models.SlotStatusCompleted && locked.SlotStatus != models.SlotStatusCancelled {
		enrolled := locked.TeachersEnrolled - 1
		if enrolled < 0 {
			enrolled = 0
		}
		status := models.DeriveSlotStatus(enrolled, locked.TeachersRequired)
		const updateSlotQuery = `UPDATE teaching_slots SET teachers_enrolled = $2, status = $3, updated_at = $4 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, updateSlotQuery, locked.SlotID, enrolled, status, now); err != nil {
			return fmt.Errorf("reclaim slot capacity: %w", err)
		}
	}

	// A session may not exist for older bookings; zero rows updated is fine.
	const rejectSessionQuery = `UPDATE teaching_sessions SET status = $2, updated_at = $3
        WHERE booking_id = $1 AND status IN ('pending', 'photo_submitted')`
	if _, err = tx.ExecContext(ctx, rejectSessionQuery, params.BookingID, models.SessionStatusRejected, now); err != nil {
		return fmt.Errorf("reject session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit cancellation: %w", err)
	}
	return nil
}
