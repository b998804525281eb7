package models

import "time"

// GradingMode selects AI-assisted or fully manual grading for an exam.
// The mode is fixed at exam creation and never changes afterwards.
type GradingMode string

const (
	GradingModeAI     GradingMode = "ai"
	GradingModeManual GradingMode = "manual"
)

// ExamStatus is the coarse publication state of an exam.
type ExamStatus string

const (
	ExamStatusDraft  ExamStatus = "draft"
	ExamStatusActive ExamStatus = "active"
	ExamStatusClosed ExamStatus = "closed"
)

// CanTransitionExam reports whether an exam status move is allowed.
// closed -> draft is an explicit revert.
func CanTransitionExam(from, to ExamStatus) bool {
	switch from {
	case ExamStatusDraft:
		return to == ExamStatusActive
	case ExamStatusActive:
		return to == ExamStatusClosed
	case ExamStatusClosed:
		return to == ExamStatusDraft
	default:
		return false
	}
}

// ObjectiveExam is a free-response exam graded via OCR plus AI or manual review.
type ObjectiveExam struct {
	ID                 string      `db:"id" json:"id"`
	TeacherID          string      `db:"teacher_id" json:"teacher_id"`
	SchoolID           string      `db:"school_id" json:"school_id"`
	Title              string      `db:"title" json:"title"`
	GradingMode        GradingMode `db:"grading_mode" json:"grading_mode"`
	TotalMarks         float64     `db:"total_marks" json:"total_marks"`
	PassingMarks       float64     `db:"passing_marks" json:"passing_marks"`
	ExamDate           time.Time   `db:"exam_date" json:"exam_date"`
	SubmissionDeadline time.Time   `db:"submission_deadline" json:"submission_deadline"`
	DurationMinutes    int         `db:"duration_minutes" json:"duration_minutes"`
	Status             ExamStatus  `db:"status" json:"status"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
}

// ObjectiveQuestion belongs to an exam. question_number values form a
// contiguous sequence starting at 1; deletions renumber the remainder.
type ObjectiveQuestion struct {
	ID             string    `db:"id" json:"id"`
	ExamID         string    `db:"exam_id" json:"exam_id"`
	QuestionNumber int       `db:"question_number" json:"question_number"`
	QuestionText   string    `db:"question_text" json:"question_text"`
	MaxMarks       float64   `db:"max_marks" json:"max_marks"`
	AnswerKeyText  *string   `db:"answer_key_text" json:"answer_key_text,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ExamFilter captures filtering criteria for listing exams.
type ExamFilter struct {
	TeacherID string
	SchoolID  string
	Status    ExamStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
