package models

import "time"

// SchoolStatus represents the lifecycle of a school record.
type SchoolStatus string

const (
	SchoolStatusActive   SchoolStatus = "active"
	SchoolStatusInactive SchoolStatus = "inactive"
)

// School represents a partner school offering teaching slots and exams.
type School struct {
	ID            string       `db:"id" json:"id"`
	Name          string       `db:"name" json:"name"`
	Code          string       `db:"code" json:"code"`
	Address       string       `db:"address" json:"address"`
	Latitude      float64      `db:"latitude" json:"latitude"`
	Longitude     float64      `db:"longitude" json:"longitude"`
	AllowedRadius float64      `db:"allowed_radius" json:"allowed_radius"`
	Status        SchoolStatus `db:"status" json:"status"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// SchoolEnrollmentStatus is the state of a teacher's membership at a school.
type SchoolEnrollmentStatus string

const (
	SchoolEnrollmentActive   SchoolEnrollmentStatus = "active"
	SchoolEnrollmentInactive SchoolEnrollmentStatus = "inactive"
)

// TeacherSchoolEnrollment links a teacher to a school. A teacher may have at
// most one enrollment flagged primary.
type TeacherSchoolEnrollment struct {
	ID        string                 `db:"id" json:"id"`
	TeacherID string                 `db:"teacher_id" json:"teacher_id"`
	SchoolID  string                 `db:"school_id" json:"school_id"`
	IsPrimary bool                   `db:"is_primary" json:"is_primary"`
	Status    SchoolEnrollmentStatus `db:"status" json:"status"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// TeacherSchoolDetail enriches the enrollment with school info.
type TeacherSchoolDetail struct {
	TeacherSchoolEnrollment
	SchoolName string `db:"school_name" json:"school_name"`
	SchoolCode string `db:"school_code" json:"school_code"`
}

// SchoolFilter captures filtering criteria for listing schools.
type SchoolFilter struct {
	Status    SchoolStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
