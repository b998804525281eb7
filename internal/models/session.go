package models

import "time"

// SessionStatus is the verification state of a teaching session.
type SessionStatus string

const (
	SessionStatusPending        SessionStatus = "pending"
	SessionStatusPhotoSubmitted SessionStatus = "photo_submitted"
	SessionStatusApproved       SessionStatus = "approved"
	SessionStatusRejected       SessionStatus = "rejected"
)

// TeachingSession is the realized teaching event tied to one booking,
// verified through photo proof and GPS distance to the school.
type TeachingSession struct {
	ID             string        `db:"id" json:"id"`
	BookingID      string        `db:"booking_id" json:"booking_id"`
	Status         SessionStatus `db:"status" json:"status"`
	StartPhotoPath *string       `db:"start_photo_path" json:"start_photo_path,omitempty"`
	EndPhotoPath   *string       `db:"end_photo_path" json:"end_photo_path,omitempty"`
	Latitude       *float64      `db:"latitude" json:"latitude,omitempty"`
	Longitude      *float64      `db:"longitude" json:"longitude,omitempty"`
	DistanceMeters *float64      `db:"distance_meters" json:"distance_meters,omitempty"`
	WithinRadius   *bool         `db:"within_radius" json:"within_radius,omitempty"`
	VerifiedBy     *string       `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt     *time.Time    `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionDetail enriches a session with booking, slot and teacher context.
type SessionDetail struct {
	TeachingSession
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	TeacherName string    `db:"teacher_name" json:"teacher_name"`
	SlotID      string    `db:"slot_id" json:"slot_id"`
	SlotDate    time.Time `db:"slot_date" json:"slot_date"`
	SchoolID    string    `db:"school_id" json:"school_id"`
	SchoolName  string    `db:"school_name" json:"school_name"`
}
