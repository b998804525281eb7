package dto

// CreateExamRequest is the teacher payload for creating an exam. The grading
// mode is chosen here and cannot be revised later.
type CreateExamRequest struct {
	SchoolID           string  `json:"school_id" validate:"required,uuid"`
	Title              string  `json:"title" validate:"required,min=3"`
	GradingMode        string  `json:"grading_mode" validate:"required,oneof=ai manual"`
	TotalMarks         float64 `json:"total_marks" validate:"required,gt=0"`
	PassingMarks       float64 `json:"passing_marks" validate:"gte=0"`
	ExamDate           string  `json:"exam_date" validate:"required,datetime=2006-01-02"`
	SubmissionDeadline string  `json:"submission_deadline" validate:"required"`
	DurationMinutes    int     `json:"duration_minutes" validate:"required,gte=10,lte=480"`
}

// UpdateExamRequest carries the mutable exam fields. grading_mode may be
// echoed back but never changed.
type UpdateExamRequest struct {
	GradingMode        string  `json:"grading_mode" validate:"omitempty,oneof=ai manual"`
	Title              string  `json:"title" validate:"required,min=3"`
	TotalMarks         float64 `json:"total_marks" validate:"required,gt=0"`
	PassingMarks       float64 `json:"passing_marks" validate:"gte=0"`
	ExamDate           string  `json:"exam_date" validate:"required,datetime=2006-01-02"`
	SubmissionDeadline string  `json:"submission_deadline" validate:"required"`
	DurationMinutes    int     `json:"duration_minutes" validate:"required,gte=10,lte=480"`
}

// UpdateExamStatusRequest moves an exam between draft, active and closed.
type UpdateExamStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active closed"`
}

// QuestionRequest creates or updates one exam question.
type QuestionRequest struct {
	QuestionText  string  `json:"question_text" validate:"required,min=3"`
	MaxMarks      float64 `json:"max_marks" validate:"required,gt=0"`
	AnswerKeyText *string `json:"answer_key_text,omitempty"`
}

// SaveGradesRequest is the teacher's manual grading payload for one
// submission.
type SaveGradesRequest struct {
	Grades []GradeEntry `json:"grades" validate:"required,min=1,dive"`
}

// GradeEntry is one per-question manual score.
type GradeEntry struct {
	QuestionID string  `json:"question_id" validate:"required,uuid"`
	Score      float64 `json:"score" validate:"gte=0"`
	Feedback   *string `json:"feedback,omitempty"`
}
