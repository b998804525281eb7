package models

import "time"

// SubmissionStatus tracks a submission through the OCR and grading pipeline.
type SubmissionStatus string

const (
	SubmissionStatusPending       SubmissionStatus = "pending"
	SubmissionStatusOCRProcessing SubmissionStatus = "ocr_processing"
	SubmissionStatusOCRComplete   SubmissionStatus = "ocr_complete"
	SubmissionStatusGrading       SubmissionStatus = "grading"
	SubmissionStatusGraded        SubmissionStatus = "graded"
	SubmissionStatusError         SubmissionStatus = "error"
)

// Terminal reports whether no further transitions are allowed from the status.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionStatusGraded
}

// CanTransitionSubmission validates pipeline moves. Progression is strictly
// forward; error is reachable from any non-terminal state.
func CanTransitionSubmission(from, to SubmissionStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == SubmissionStatusError {
		return true
	}
	switch from {
	case SubmissionStatusPending:
		return to == SubmissionStatusOCRProcessing
	case SubmissionStatusOCRProcessing:
		return to == SubmissionStatusOCRComplete
	case SubmissionStatusOCRComplete:
		return to == SubmissionStatusGrading
	case SubmissionStatusGrading:
		return to == SubmissionStatusGraded
	case SubmissionStatusError:
		// a stalled submission may be re-queued for OCR or graded manually
		return to == SubmissionStatusOCRProcessing || to == SubmissionStatusGraded
	default:
		return false
	}
}

// ObjectiveSubmission is one student's answer set for an objective exam.
type ObjectiveSubmission struct {
	ID             string           `db:"id" json:"id"`
	ExamID         string           `db:"exam_id" json:"exam_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	Status         SubmissionStatus `db:"status" json:"status"`
	AnswerFilePath *string          `db:"answer_file_path" json:"answer_file_path,omitempty"`
	OCRText        *string          `db:"ocr_text" json:"ocr_text,omitempty"`
	OCRConfidence  *float64         `db:"ocr_confidence" json:"ocr_confidence,omitempty"`
	ScoredMarks    float64          `db:"scored_marks" json:"scored_marks"`
	SubmittedAt    time.Time        `db:"submitted_at" json:"submitted_at"`
	GradedAt       *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
}

// SubmissionDetail enriches a submission with student identity.
type SubmissionDetail struct {
	ObjectiveSubmission
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// GradingMethod records the provenance of a final per-question score.
type GradingMethod string

const (
	GradingMethodAI         GradingMethod = "ai"
	GradingMethodManual     GradingMethod = "manual"
	GradingMethodAIOverride GradingMethod = "ai_override"
)

// AnswerGrade holds the per-question score for a submission. AI fields come
// from the grading collaborator; manual fields are teacher overrides.
// final_score is whichever is authoritative per grading_method.
type AnswerGrade struct {
	ID             string        `db:"id" json:"id"`
	SubmissionID   string        `db:"submission_id" json:"submission_id"`
	QuestionID     string        `db:"question_id" json:"question_id"`
	AIScore        *float64      `db:"ai_score" json:"ai_score,omitempty"`
	AIFeedback     *string       `db:"ai_feedback" json:"ai_feedback,omitempty"`
	AIConfidence   *float64      `db:"ai_confidence" json:"ai_confidence,omitempty"`
	ManualScore    *float64      `db:"manual_score" json:"manual_score,omitempty"`
	ManualFeedback *string       `db:"manual_feedback" json:"manual_feedback,omitempty"`
	FinalScore     float64       `db:"final_score" json:"final_score"`
	GradingMethod  GradingMethod `db:"grading_method" json:"grading_method"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// SubmissionFilter captures filtering criteria for listing submissions.
type SubmissionFilter struct {
	ExamID    string
	StudentID string
	Status    SubmissionStatus
	Page      int
	PageSize  int
}
