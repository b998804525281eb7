package models

import (
	"fmt"
	"time"
)

// SlotStatus represents the lifecycle of a teaching slot.
type SlotStatus string

const (
	SlotStatusOpen            SlotStatus = "open"
	SlotStatusPartiallyFilled SlotStatus = "partially_filled"
	SlotStatusFull            SlotStatus = "full"
	SlotStatusCompleted       SlotStatus = "completed"
	SlotStatusCancelled       SlotStatus = "cancelled"
)

// DeriveSlotStatus recomputes the capacity-derived status from the enrolled
// and required counters. Completed and cancelled are terminal and never
// derived; callers must not pass slots in those states.
func DeriveSlotStatus(enrolled, required int) SlotStatus {
	switch {
	case enrolled <= 0:
		return SlotStatusOpen
	case enrolled < required:
		return SlotStatusPartiallyFilled
	default:
		return SlotStatusFull
	}
}

// TeachingSlot is a school-defined teaching window with a teacher capacity.
type TeachingSlot struct {
	ID               string     `db:"id" json:"id"`
	SchoolID         string     `db:"school_id" json:"school_id"`
	SlotDate         time.Time  `db:"slot_date" json:"slot_date"`
	StartTime        string     `db:"start_time" json:"start_time"`
	EndTime          string     `db:"end_time" json:"end_time"`
	TeachersRequired int        `db:"teachers_required" json:"teachers_required"`
	TeachersEnrolled int        `db:"teachers_enrolled" json:"teachers_enrolled"`
	Status           SlotStatus `db:"status" json:"status"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// SpotsLeft returns the remaining capacity of the slot.
func (s TeachingSlot) SpotsLeft() int {
	left := s.TeachersRequired - s.TeachersEnrolled
	if left < 0 {
		return 0
	}
	return left
}

// StartDateTime combines slot_date and start_time into a single instant in
// the provided location. start_time is stored as "15:04".
func (s TeachingSlot) StartDateTime(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("15:04", s.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot start time %q: %w", s.StartTime, err)
	}
	return time.Date(s.SlotDate.Year(), s.SlotDate.Month(), s.SlotDate.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// BookingStatus is the state of a teacher's reservation of a slot.
type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusNoShow    BookingStatus = "no_show"
)

// SlotBooking is a teacher's reservation of one teaching slot.
type SlotBooking struct {
	ID                 string        `db:"id" json:"id"`
	SlotID             string        `db:"slot_id" json:"slot_id"`
	TeacherID          string        `db:"teacher_id" json:"teacher_id"`
	Status             BookingStatus `db:"status" json:"status"`
	CancellationReason *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
}

// SlotBookingDetail enriches a booking with its slot and school info.
type SlotBookingDetail struct {
	SlotBooking
	SlotDate   time.Time  `db:"slot_date" json:"slot_date"`
	StartTime  string     `db:"start_time" json:"start_time"`
	EndTime    string     `db:"end_time" json:"end_time"`
	SlotStatus SlotStatus `db:"slot_status" json:"slot_status"`
	SchoolID   string     `db:"school_id" json:"school_id"`
	SchoolName string     `db:"school_name" json:"school_name"`
}

// SlotFilter captures filtering criteria for listing teaching slots.
type SlotFilter struct {
	SchoolID  string
	Status    SlotStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
