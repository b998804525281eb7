package dto

import (
	"time"

	"github.com/noah-isme/guru-portal-api/internal/models"
)

// GradingSheet is the per-submission view a teacher grades against: every
// question of the exam joined with any existing grade row.
type GradingSheet struct {
	Submission models.SubmissionDetail `json:"submission"`
	Exam       models.ObjectiveExam    `json:"exam"`
	Rows       []GradingSheetRow       `json:"rows"`
}

// GradingSheetRow pairs a question with its current grade state.
type GradingSheetRow struct {
	QuestionID     string   `json:"question_id"`
	QuestionNumber int      `json:"question_number"`
	QuestionText   string   `json:"question_text"`
	MaxMarks       float64  `json:"max_marks"`
	AIScore        *float64 `json:"ai_score,omitempty"`
	AIFeedback     *string  `json:"ai_feedback,omitempty"`
	ManualScore    *float64 `json:"manual_score,omitempty"`
	ManualFeedback *string  `json:"manual_feedback,omitempty"`
	FinalScore     *float64 `json:"final_score,omitempty"`
	GradingMethod  *string  `json:"grading_method,omitempty"`
}

// ExamResultRow summarises one student's outcome on an exam.
type ExamResultRow struct {
	SubmissionID string                  `db:"submission_id" json:"submission_id"`
	StudentID    string                  `db:"student_id" json:"student_id"`
	StudentName  string                  `db:"student_name" json:"student_name"`
	Status       models.SubmissionStatus `db:"status" json:"status"`
	ScoredMarks  float64                 `db:"scored_marks" json:"scored_marks"`
	GradedAt     *time.Time              `db:"graded_at" json:"graded_at,omitempty"`
	Passed       bool                    `json:"passed"`
}

// AIGradesRequest is the payload posted by the grading collaborator with
// machine scores for every question of a submission.
type AIGradesRequest struct {
	Grades []AIGradeResult `json:"grades" validate:"required,min=1,dive"`
}

// AIGradeResult is one machine score.
type AIGradeResult struct {
	QuestionID string   `json:"question_id" validate:"required,uuid"`
	Score      float64  `json:"score" validate:"gte=0"`
	Feedback   *string  `json:"feedback,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// OCRResult is the payload posted by the OCR collaborator when text
// extraction finishes or fails.
type OCRResult struct {
	Success          bool    `json:"success"`
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMS int64   `json:"processing_time_ms"`
	Error            string  `json:"error"`
}
