package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

type examStore interface {
	List(ctx context.Context, filter models.ExamFilter) ([]models.ObjectiveExam, int, error)
	FindByID(ctx context.Context, id string) (*models.ObjectiveExam, error)
	Create(ctx context.Context, exam *models.ObjectiveExam) error
	Update(ctx context.Context, exam *models.ObjectiveExam) error
	UpdateStatus(ctx context.Context, id string, status models.ExamStatus) error
	CountQuestions(ctx context.Context, examID string) (int, error)
	ListQuestions(ctx context.Context, examID string) ([]models.ObjectiveQuestion, error)
	FindQuestionByID(ctx context.Context, id string) (*models.ObjectiveQuestion, error)
	CreateQuestion(ctx context.Context, question *models.ObjectiveQuestion) error
	UpdateQuestion(ctx context.Context, question *models.ObjectiveQuestion) error
	DeleteQuestion(ctx context.Context, id string) error
}

type examEnrollmentChecker interface {
	FindActiveEnrollment(ctx context.Context, teacherID, schoolID string) (*models.TeacherSchoolEnrollment, error)
}

// ExamService manages objective exams and their question banks. The grading
// mode is fixed at creation; activation requires at least one question.
type ExamService struct {
	repo        examStore
	enrollments examEnrollmentChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewExamService constructs an ExamService.
func NewExamService(repo examStore, enrollments examEnrollmentChecker, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{repo: repo, enrollments: enrollments, validator: validate, logger: logger}
}

// List returns exams. Teachers see their own; admins can filter freely.
func (s *ExamService) List(ctx context.Context, filter models.ExamFilter, claims *models.JWTClaims) ([]models.ObjectiveExam, int, error) {
	if claims == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleTeacher {
		filter.TeacherID = claims.UserID
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	exams, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return exams, total, nil
}

// Get returns one exam, enforcing teacher ownership.
func (s *ExamService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.ObjectiveExam, error) {
	exam, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	if claims != nil && claims.Role == models.RoleTeacher && exam.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exam belongs to another teacher")
	}
	return exam, nil
}

// Create registers a new exam in draft. The teacher must be enrolled at the
// target school and the grading mode chosen here is final.
func (s *ExamService) Create(ctx context.Context, teacherID string, req dto.CreateExamRequest) (*models.ObjectiveExam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	if req.PassingMarks > req.TotalMarks {
		return nil, appErrors.Clone(appErrors.ErrValidation, "passing_marks cannot exceed total_marks")
	}

	enrollment, err := s.enrollments.FindActiveEnrollment(ctx, teacherID, req.SchoolID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrollment == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled at this school")
	}

	examDate, err := time.Parse("2006-01-02", req.ExamDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam_date must be YYYY-MM-DD")
	}
	deadline, err := time.Parse(time.RFC3339, req.SubmissionDeadline)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission_deadline must be RFC3339")
	}
	if !deadline.After(examDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission_deadline must be after exam_date")
	}

	now := time.Now().UTC()
	exam := &models.ObjectiveExam{
		ID:                 uuid.NewString(),
		TeacherID:          teacherID,
		SchoolID:           req.SchoolID,
		Title:              req.Title,
		GradingMode:        models.GradingMode(req.GradingMode),
		TotalMarks:         req.TotalMarks,
		PassingMarks:       req.PassingMarks,
		ExamDate:           examDate,
		SubmissionDeadline: deadline,
		DurationMinutes:    req.DurationMinutes,
		Status:             models.ExamStatusDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}

	s.logger.Info("exam created",
		zap.String("exam_id", exam.ID),
		zap.String("grading_mode", string(exam.GradingMode)))
	return exam, nil
}

// Update edits exam metadata while in draft. The grading mode never changes.
func (s *ExamService) Update(ctx context.Context, id string, claims *models.JWTClaims, req dto.UpdateExamRequest) (*models.ObjectiveExam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	if req.PassingMarks > req.TotalMarks {
		return nil, appErrors.Clone(appErrors.ErrValidation, "passing_marks cannot exceed total_marks")
	}

	exam, err := s.Get(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if exam.Status != models.ExamStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only draft exams can be edited")
	}
	if req.GradingMode != "" && req.GradingMode != string(exam.GradingMode) {
		return nil, appErrors.ErrGradingModeLocked
	}

	examDate, err := time.Parse("2006-01-02", req.ExamDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam_date must be YYYY-MM-DD")
	}
	deadline, err := time.Parse(time.RFC3339, req.SubmissionDeadline)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission_deadline must be RFC3339")
	}
	if !deadline.After(examDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission_deadline must be after exam_date")
	}

	exam.Title = req.Title
	exam.TotalMarks = req.TotalMarks
	exam.PassingMarks = req.PassingMarks
	exam.ExamDate = examDate
	exam.SubmissionDeadline = deadline
	exam.DurationMinutes = req.DurationMinutes
	exam.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam")
	}
	return exam, nil
}

// UpdateStatus moves an exam along draft -> active -> closed, with the
// closed -> draft revert. Activation requires at least one question.
func (s *ExamService) UpdateStatus(ctx context.Context, id string, claims *models.JWTClaims, req dto.UpdateExamStatusRequest) (*models.ObjectiveExam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	exam, err := s.Get(ctx, id, claims)
	if err != nil {
		return nil, err
	}

	target := models.ExamStatus(req.Status)
	if !models.CanTransitionExam(exam.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			"exam cannot move from "+string(exam.Status)+" to "+string(target))
	}

	if target == models.ExamStatusActive {
		count, err := s.repo.CountQuestions(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count questions")
		}
		if count == 0 {
			return nil, appErrors.ErrNoQuestions
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam status")
	}
	exam.Status = target

	s.logger.Info("exam status changed", zap.String("exam_id", id), zap.String("status", string(target)))
	return exam, nil
}

// Questions lists the exam's questions in order.
func (s *ExamService) Questions(ctx context.Context, examID string, claims *models.JWTClaims) ([]models.ObjectiveQuestion, error) {
	if _, err := s.Get(ctx, examID, claims); err != nil {
		return nil, err
	}
	questions, err := s.repo.ListQuestions(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	return questions, nil
}

// AddQuestion appends a question to a draft exam.
func (s *ExamService) AddQuestion(ctx context.Context, examID string, claims *models.JWTClaims, req dto.QuestionRequest) (*models.ObjectiveQuestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}

	exam, err := s.Get(ctx, examID, claims)
	if err != nil {
		return nil, err
	}
	if exam.Status != models.ExamStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "questions can only change while the exam is draft")
	}

	question := &models.ObjectiveQuestion{
		ID:            uuid.NewString(),
		ExamID:        examID,
		QuestionText:  req.QuestionText,
		MaxMarks:      req.MaxMarks,
		AnswerKeyText: req.AnswerKeyText,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateQuestion(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}
	return question, nil
}

// UpdateQuestion edits a question's text, marks and answer key.
func (s *ExamService) UpdateQuestion(ctx context.Context, questionID string, claims *models.JWTClaims, req dto.QuestionRequest) (*models.ObjectiveQuestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}

	question, err := s.findQuestionForWrite(ctx, questionID, claims)
	if err != nil {
		return nil, err
	}

	question.QuestionText = req.QuestionText
	question.MaxMarks = req.MaxMarks
	question.AnswerKeyText = req.AnswerKeyText

	if err := s.repo.UpdateQuestion(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update question")
	}
	return question, nil
}

// DeleteQuestion removes a question; later questions shift down to keep the
// numbering contiguous.
func (s *ExamService) DeleteQuestion(ctx context.Context, questionID string, claims *models.JWTClaims) error {
	if _, err := s.findQuestionForWrite(ctx, questionID, claims); err != nil {
		return err
	}
	if err := s.repo.DeleteQuestion(ctx, questionID); err != nil {
		return err
	}
	return nil
}

func (s *ExamService) findQuestionForWrite(ctx context.Context, questionID string, claims *models.JWTClaims) (*models.ObjectiveQuestion, error) {
	question, err := s.repo.FindQuestionByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}

	exam, err := s.Get(ctx, question.ExamID, claims)
	if err != nil {
		return nil, err
	}
	if exam.Status != models.ExamStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "questions can only change while the exam is draft")
	}
	return question, nil
}
