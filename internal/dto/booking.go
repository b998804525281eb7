package dto

import (
	"time"

	"github.com/noah-isme/guru-portal-api/internal/models"
)

// SlotBrowseItem is a teaching slot as seen by a browsing teacher, with the
// eligibility flags the booking endpoint will enforce.
type SlotBrowseItem struct {
	ID               string            `db:"id" json:"id"`
	SchoolID         string            `db:"school_id" json:"school_id"`
	SchoolName       string            `db:"school_name" json:"school_name"`
	SlotDate         time.Time         `db:"slot_date" json:"slot_date"`
	StartTime        string            `db:"start_time" json:"start_time"`
	EndTime          string            `db:"end_time" json:"end_time"`
	TeachersRequired int               `db:"teachers_required" json:"teachers_required"`
	TeachersEnrolled int               `db:"teachers_enrolled" json:"teachers_enrolled"`
	Status           models.SlotStatus `db:"status" json:"status"`
	SpotsLeft        int               `db:"spots_left" json:"spots_left"`
	AlreadyBooked    bool              `db:"already_booked" json:"already_booked"`
	Bookable         bool              `json:"bookable"`
}

// SlotBrowseResult wraps the browse listing with the teacher's current
// active booking, if any.
type SlotBrowseResult struct {
	Slots         []SlotBrowseItem          `json:"slots"`
	ActiveBooking *models.SlotBookingDetail `json:"active_booking,omitempty"`
	FromCache     bool                      `json:"-"`
}

// CancelBookingRequest carries the teacher-provided cancellation reason.
type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}
