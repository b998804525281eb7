package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	"github.com/noah-isme/guru-portal-api/internal/repository"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

type submissionStore interface {
	FindByID(ctx context.Context, id string) (*models.ObjectiveSubmission, error)
	FindByExamAndStudent(ctx context.Context, examID, studentID string) (*models.ObjectiveSubmission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
	Create(ctx context.Context, submission *models.ObjectiveSubmission) error
	UpdateStatus(ctx context.Context, id string, to models.SubmissionStatus) error
	SaveOCRResult(ctx context.Context, id, text string, confidence float64) error
	ResultsForExam(ctx context.Context, examID string) ([]dto.ExamResultRow, error)
}

type gradeStore interface {
	ListBySubmission(ctx context.Context, submissionID string) ([]models.AnswerGrade, error)
	SaveManualGrades(ctx context.Context, submissionID string, grades []repository.ManualGradeParams, allowedStates []models.SubmissionStatus, now time.Time) (float64, error)
	SaveAIGrades(ctx context.Context, submissionID string, grades []repository.AIGradeParams, now time.Time) (float64, error)
}

type gradingExamReader interface {
	FindByID(ctx context.Context, id string) (*models.ObjectiveExam, error)
	ListQuestions(ctx context.Context, examID string) ([]models.ObjectiveQuestion, error)
}

type answerStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
}

// GradingService drives submissions through the OCR and grading pipeline and
// enforces the manual grading rules: on AI exams a teacher may only write
// scores once the machine pass has finished or failed, and every score is
// clamped to the question's maximum.
type GradingService struct {
	submissions submissionStore
	grades      gradeStore
	exams       gradingExamReader
	storage     answerStorage
	audit       auditLogger
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradingService constructs a GradingService.
func NewGradingService(
	submissions submissionStore,
	grades gradeStore,
	exams gradingExamReader,
	store answerStorage,
	audit auditLogger,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *GradingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingService{
		submissions: submissions,
		grades:      grades,
		exams:       exams,
		storage:     store,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Submit registers a student's answer sheet for an active exam, before the
// submission deadline, at most once per student.
func (s *GradingService) Submit(ctx context.Context, examID, studentID string, answer PhotoUpload) (*models.ObjectiveSubmission, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != models.ExamStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exam is not accepting submissions")
	}
	now := time.Now().UTC()
	if now.After(exam.SubmissionDeadline) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission deadline has passed")
	}
	if answer.Reader == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "answer file is required")
	}

	existing, err := s.submissions.FindByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submission")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission already exists for this exam")
	}

	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(answer.Filename))
	path, err := s.storage.SaveStream(fmt.Sprintf("%s_answer%s", id, ext), answer.Reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store answer file")
	}

	submission := &models.ObjectiveSubmission{
		ID:             id,
		ExamID:         examID,
		StudentID:      studentID,
		Status:         models.SubmissionStatusPending,
		AnswerFilePath: &path,
		SubmittedAt:    now,
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}

	s.logger.Info("submission received",
		zap.String("submission_id", id),
		zap.String("exam_id", examID),
		zap.String("student_id", studentID))
	return submission, nil
}

// ListSubmissions returns submissions for an exam, enforcing teacher
// ownership of the exam.
func (s *GradingService) ListSubmissions(ctx context.Context, examID string, claims *models.JWTClaims, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	if _, err := s.examForTeacher(ctx, examID, claims); err != nil {
		return nil, 0, err
	}
	filter.ExamID = examID
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	items, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return items, total, nil
}

// StartOCR hands a submission to the OCR collaborator: pending (or a stalled
// error) moves to ocr_processing.
func (s *GradingService) StartOCR(ctx context.Context, submissionID string) error {
	return s.submissions.UpdateStatus(ctx, submissionID, models.SubmissionStatusOCRProcessing)
}

// HandleOCRResult records the OCR collaborator's callback. On success the
// extracted text lands and AI-mode exams continue straight into machine
// grading; failure parks the submission in error.
func (s *GradingService) HandleOCRResult(ctx context.Context, submissionID string, result dto.OCRResult) error {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return err
	}

	if !result.Success {
		s.logger.Warn("ocr failed",
			zap.String("submission_id", submissionID),
			zap.String("error", result.Error))
		return s.submissions.UpdateStatus(ctx, submissionID, models.SubmissionStatusError)
	}

	if err := s.submissions.SaveOCRResult(ctx, submissionID, result.Text, result.Confidence); err != nil {
		return err
	}

	exam, err := s.loadExam(ctx, submission.ExamID)
	if err != nil {
		return err
	}
	if exam.GradingMode == models.GradingModeAI {
		// queue the machine pass; manual exams wait for the teacher
		if err := s.submissions.UpdateStatus(ctx, submissionID, models.SubmissionStatusGrading); err != nil {
			return err
		}
	}
	return nil
}

// HandleAIGrades records the grading collaborator's scores and finalizes the
// submission. Scores are clamped to each question's maximum.
func (s *GradingService) HandleAIGrades(ctx context.Context, submissionID string, req dto.AIGradesRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ai grades payload")
	}

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return err
	}

	maxByQuestion, err := s.questionMaxima(ctx, submission.ExamID)
	if err != nil {
		return err
	}

	params := make([]repository.AIGradeParams, 0, len(req.Grades))
	for _, grade := range req.Grades {
		maxMarks, ok := maxByQuestion[grade.QuestionID]
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, "unknown question "+grade.QuestionID)
		}
		params = append(params, repository.AIGradeParams{
			QuestionID: grade.QuestionID,
			Score:      clampScore(grade.Score, maxMarks),
			Feedback:   grade.Feedback,
			Confidence: grade.Confidence,
		})
	}

	scored, err := s.grades.SaveAIGrades(ctx, submissionID, params, time.Now().UTC())
	if err != nil {
		return err
	}

	s.logger.Info("ai grading complete",
		zap.String("submission_id", submissionID),
		zap.Float64("scored_marks", scored))
	return nil
}

// SaveGrades writes a teacher's manual scores. On AI exams this is only
// allowed once the machine pass has finished or failed; otherwise
// GradingInProgress. Existing AI scores become teacher overrides.
func (s *GradingService) SaveGrades(ctx context.Context, submissionID string, claims *models.JWTClaims, req dto.SaveGradesRequest) (float64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grades payload")
	}

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return 0, err
	}

	exam, err := s.examForTeacher(ctx, submission.ExamID, claims)
	if err != nil {
		return 0, err
	}

	// On AI exams the submission must be out of the machine pipeline. The
	// repository re-checks this set under the row lock.
	var allowedStates []models.SubmissionStatus
	if exam.GradingMode == models.GradingModeAI {
		allowedStates = []models.SubmissionStatus{models.SubmissionStatusGraded, models.SubmissionStatusError}
		if submission.Status != models.SubmissionStatusGraded && submission.Status != models.SubmissionStatusError {
			return 0, appErrors.ErrGradingInProgress
		}
	}

	maxByQuestion, err := s.questionMaxima(ctx, exam.ID)
	if err != nil {
		return 0, err
	}

	params := make([]repository.ManualGradeParams, 0, len(req.Grades))
	for _, grade := range req.Grades {
		maxMarks, ok := maxByQuestion[grade.QuestionID]
		if !ok {
			return 0, appErrors.Clone(appErrors.ErrValidation, "unknown question "+grade.QuestionID)
		}
		params = append(params, repository.ManualGradeParams{
			QuestionID: grade.QuestionID,
			Score:      clampScore(grade.Score, maxMarks),
			Feedback:   grade.Feedback,
		})
	}

	scored, err := s.grades.SaveManualGrades(ctx, submissionID, params, allowedStates, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	if claims != nil {
		payload, _ := json.Marshal(map[string]interface{}{"scored_marks": scored})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &claims.UserID,
			Action:     models.AuditActionGradeSave,
			Resource:   "submission",
			ResourceID: &submissionID,
			NewValues:  payload,
		}); err != nil {
			s.logger.Warn("failed to record grading audit log", zap.Error(err))
		}
	}
	return scored, nil
}

// Sheet assembles the grading view for one submission: every question joined
// with any existing grade row.
func (s *GradingService) Sheet(ctx context.Context, submissionID string, claims *models.JWTClaims) (*dto.GradingSheet, error) {
	submission, err := s.loadSubmissionDetail(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	exam, err := s.examForTeacher(ctx, submission.ExamID, claims)
	if err != nil {
		return nil, err
	}

	questions, err := s.exams.ListQuestions(ctx, exam.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	grades, err := s.grades.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}

	byQuestion := make(map[string]models.AnswerGrade, len(grades))
	for _, grade := range grades {
		byQuestion[grade.QuestionID] = grade
	}

	rows := make([]dto.GradingSheetRow, 0, len(questions))
	for _, q := range questions {
		row := dto.GradingSheetRow{
			QuestionID:     q.ID,
			QuestionNumber: q.QuestionNumber,
			QuestionText:   q.QuestionText,
			MaxMarks:       q.MaxMarks,
		}
		if grade, ok := byQuestion[q.ID]; ok {
			row.AIScore = grade.AIScore
			row.AIFeedback = grade.AIFeedback
			row.ManualScore = grade.ManualScore
			row.ManualFeedback = grade.ManualFeedback
			final := grade.FinalScore
			row.FinalScore = &final
			method := string(grade.GradingMethod)
			row.GradingMethod = &method
		}
		rows = append(rows, row)
	}

	return &dto.GradingSheet{Submission: *submission, Exam: *exam, Rows: rows}, nil
}

// Results returns the per-student outcome for an exam with pass/fail against
// the passing marks.
func (s *GradingService) Results(ctx context.Context, examID string, claims *models.JWTClaims) ([]dto.ExamResultRow, *models.ObjectiveExam, error) {
	exam, err := s.examForTeacher(ctx, examID, claims)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	rows, err := s.submissions.ResultsForExam(ctx, examID)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("exam_results", time.Since(start))
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load results")
	}
	for i := range rows {
		rows[i].Passed = rows[i].Status == models.SubmissionStatusGraded && rows[i].ScoredMarks >= exam.PassingMarks
	}
	return rows, exam, nil
}

func (s *GradingService) loadExam(ctx context.Context, examID string) (*models.ObjectiveExam, error) {
	exam, err := s.exams.FindByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

func (s *GradingService) examForTeacher(ctx context.Context, examID string, claims *models.JWTClaims) (*models.ObjectiveExam, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if claims != nil && claims.Role == models.RoleTeacher && exam.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exam belongs to another teacher")
	}
	return exam, nil
}

func (s *GradingService) loadSubmission(ctx context.Context, submissionID string) (*models.ObjectiveSubmission, error) {
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

func (s *GradingService) loadSubmissionDetail(ctx context.Context, submissionID string) (*models.SubmissionDetail, error) {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	items, _, err := s.submissions.List(ctx, models.SubmissionFilter{ExamID: submission.ExamID, StudentID: submission.StudentID, Page: 1, PageSize: 1})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission detail")
	}
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	return &items[0], nil
}

func (s *GradingService) questionMaxima(ctx context.Context, examID string) (map[string]float64, error) {
	questions, err := s.exams.ListQuestions(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	maxima := make(map[string]float64, len(questions))
	for _, q := range questions {
		maxima[q.ID] = q.MaxMarks
	}
	return maxima, nil
}

func clampScore(score, maxMarks float64) float64 {
	if score < 0 {
		return 0
	}
	if score > maxMarks {
		return maxMarks
	}
	return score
}
