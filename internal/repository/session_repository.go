package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/guru-portal-api/internal/models"
)

// SessionRepository persists teaching sessions and their verification state.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionDetailColumns = `s.id, s.booking_id, s.status, s.start_photo_path, s.end_photo_path,
    s.latitude, s.longitude, s.distance_meters, s.within_radius, s.verified_by, s.verified_at,
    s.created_at, s.updated_at,
    b.teacher_id, u.name AS teacher_name, b.slot_id, t.slot_date, t.school_id, sc.name AS school_name`

const sessionDetailJoins = `FROM teaching_sessions s
    JOIN slot_bookings b ON b.id = s.booking_id
    JOIN users u ON u.id = b.teacher_id
    JOIN teaching_slots t ON t.id = b.slot_id
    JOIN schools sc ON sc.id = t.school_id`

// FindByID returns a session with its booking, slot and school context.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE s.id = $1`, sessionDetailColumns, sessionDetailJoins)
	var session models.SessionDetail
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByBookingID returns the session attached to a booking.
func (r *SessionRepository) FindByBookingID(ctx context.Context, bookingID string) (*models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE s.booking_id = $1`, sessionDetailColumns, sessionDetailJoins)
	var session models.SessionDetail
	if err := r.db.GetContext(ctx, &session, query, bookingID); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListForTeacher returns a teacher's sessions, newest slot first.
func (r *SessionRepository) ListForTeacher(ctx context.Context, teacherID string) ([]models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE b.teacher_id = $1 ORDER BY t.slot_date DESC`, sessionDetailColumns, sessionDetailJoins)
	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher sessions: %w", err)
	}
	return sessions, nil
}

// ListByStatus returns sessions in the given state for admin review.
func (r *SessionRepository) ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE s.status = $1 ORDER BY s.updated_at ASC`, sessionDetailColumns, sessionDetailJoins)
	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, status); err != nil {
		return nil, fmt.Errorf("list sessions by status: %w", err)
	}
	return sessions, nil
}

// SubmitProof records the photo evidence and GPS check outcome and moves the
// session to photo_submitted.
func (r *SessionRepository) SubmitProof(ctx context.Context, session *models.TeachingSession) error {
	const query = `UPDATE teaching_sessions
        SET status = $2, start_photo_path = $3, end_photo_path = $4,
            latitude = $5, longitude = $6, distance_meters = $7, within_radius = $8, updated_at = $9
        WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, models.SessionStatusPhotoSubmitted,
		session.StartPhotoPath, session.EndPhotoPath,
		session.Latitude, session.Longitude, session.DistanceMeters, session.WithinRadius,
		time.Now())
	if err != nil {
		return fmt.Errorf("submit session proof: %w", err)
	}
	return nil
}

// Verify records an admin decision on a submitted session.
func (r *SessionRepository) Verify(ctx context.Context, sessionID, adminID string, status models.SessionStatus) error {
	const query = `UPDATE teaching_sessions
        SET status = $2, verified_by = $3, verified_at = $4, updated_at = $4
        WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID, status, adminID, time.Now())
	if err != nil {
		return fmt.Errorf("verify session: %w", err)
	}
	return nil
}
