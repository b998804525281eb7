package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

type mockExamStore struct {
	exams         map[string]*models.ObjectiveExam
	questions     map[string]*models.ObjectiveQuestion
	questionCount int
	statusSet     models.ExamStatus
	updated       *models.ObjectiveExam
	deleted       []string
}

func (m *mockExamStore) List(ctx context.Context, filter models.ExamFilter) ([]models.ObjectiveExam, int, error) {
	var list []models.ObjectiveExam
	for _, exam := range m.exams {
		if filter.TeacherID != "" && exam.TeacherID != filter.TeacherID {
			continue
		}
		list = append(list, *exam)
	}
	return list, len(list), nil
}

func (m *mockExamStore) FindByID(ctx context.Context, id string) (*models.ObjectiveExam, error) {
	if exam, ok := m.exams[id]; ok {
		return exam, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExamStore) Create(ctx context.Context, exam *models.ObjectiveExam) error {
	if m.exams == nil {
		m.exams = make(map[string]*models.ObjectiveExam)
	}
	m.exams[exam.ID] = exam
	return nil
}

func (m *mockExamStore) Update(ctx context.Context, exam *models.ObjectiveExam) error {
	m.updated = exam
	m.exams[exam.ID] = exam
	return nil
}

func (m *mockExamStore) UpdateStatus(ctx context.Context, id string, status models.ExamStatus) error {
	m.statusSet = status
	return nil
}

func (m *mockExamStore) CountQuestions(ctx context.Context, examID string) (int, error) {
	return m.questionCount, nil
}

func (m *mockExamStore) ListQuestions(ctx context.Context, examID string) ([]models.ObjectiveQuestion, error) {
	return nil, nil
}

func (m *mockExamStore) FindQuestionByID(ctx context.Context, id string) (*models.ObjectiveQuestion, error) {
	if q, ok := m.questions[id]; ok {
		return q, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExamStore) CreateQuestion(ctx context.Context, question *models.ObjectiveQuestion) error {
	if m.questions == nil {
		m.questions = make(map[string]*models.ObjectiveQuestion)
	}
	question.QuestionNumber = len(m.questions) + 1
	m.questions[question.ID] = question
	return nil
}

func (m *mockExamStore) UpdateQuestion(ctx context.Context, question *models.ObjectiveQuestion) error {
	m.questions[question.ID] = question
	return nil
}

func (m *mockExamStore) DeleteQuestion(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.questions, id)
	return nil
}

func newExamFixture(store *mockExamStore, enrolled bool) *ExamService {
	checker := &mockEnrollmentChecker{}
	if enrolled {
		checker.enrolled = map[string]bool{teacherID + schoolID: true}
	}
	return NewExamService(store, checker, validator.New(), zap.NewNop())
}

func validCreateExamRequest() dto.CreateExamRequest {
	return dto.CreateExamRequest{
		SchoolID:           schoolID,
		Title:              "Ujian Matematika",
		GradingMode:        "ai",
		TotalMarks:         100,
		PassingMarks:       60,
		ExamDate:           "2026-09-20",
		SubmissionDeadline: "2026-09-21T18:00:00Z",
		DurationMinutes:    90,
	}
}

func TestExamServiceCreate(t *testing.T) {
	store := &mockExamStore{}
	svc := newExamFixture(store, true)

	exam, err := svc.Create(context.Background(), teacherID, validCreateExamRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusDraft, exam.Status)
	assert.Equal(t, models.GradingModeAI, exam.GradingMode)
}

func TestExamServiceCreateNotEnrolled(t *testing.T) {
	svc := newExamFixture(&mockExamStore{}, false)

	_, err := svc.Create(context.Background(), teacherID, validCreateExamRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExamServiceCreatePassingAboveTotal(t *testing.T) {
	svc := newExamFixture(&mockExamStore{}, true)

	req := validCreateExamRequest()
	req.PassingMarks = 120
	_, err := svc.Create(context.Background(), teacherID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExamServiceCreateDeadlineBeforeExamDate(t *testing.T) {
	svc := newExamFixture(&mockExamStore{}, true)

	req := validCreateExamRequest()
	req.SubmissionDeadline = "2026-09-19T18:00:00Z"
	_, err := svc.Create(context.Background(), teacherID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExamServiceUpdateKeepsGradingMode(t *testing.T) {
	store := &mockExamStore{exams: map[string]*models.ObjectiveExam{examID: {
		ID: examID, TeacherID: teacherID, GradingMode: models.GradingModeManual, Status: models.ExamStatusDraft,
	}}}
	svc := newExamFixture(store, true)

	exam, err := svc.Update(context.Background(), examID, teacherClaims(), dto.UpdateExamRequest{
		Title:              "Ujian Fisika",
		TotalMarks:         80,
		PassingMarks:       50,
		ExamDate:           "2026-10-01",
		SubmissionDeadline: "2026-10-02T18:00:00Z",
		DurationMinutes:    60,
	})
	require.NoError(t, err)
	assert.Equal(t, models.GradingModeManual, exam.GradingMode)
	assert.Equal(t, "Ujian Fisika", exam.Title)
}

func TestExamServiceUpdateRejectsGradingModeChange(t *testing.T) {
	store := &mockExamStore{exams: map[string]*models.ObjectiveExam{examID: {
		ID: examID, TeacherID: teacherID, GradingMode: models.GradingModeManual, Status: models.ExamStatusDraft,
	}}}
	svc := newExamFixture(store, true)

	_, err := svc.Update(context.Background(), examID, teacherClaims(), dto.UpdateExamRequest{
		GradingMode:        "ai",
		Title:              "Ujian Fisika",
		TotalMarks:         80,
		PassingMarks:       50,
		ExamDate:           "2026-10-01",
		SubmissionDeadline: "2026-10-02T18:00:00Z",
		DurationMinutes:    60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGradingModeLocked.Code, appErrors.FromError(err).Code)
}

func TestExamServiceUpdateNonDraft(t *testing.T) {
	store := &mockExamStore{exams: map[string]*models.ObjectiveExam{examID: {
		ID: examID, TeacherID: teacherID, Status: models.ExamStatusActive,
	}}}
	svc := newExamFixture(store, true)

	_, err := svc.Update(context.Background(), examID, teacherClaims(), dto.UpdateExamRequest{
		Title:              "Ujian Fisika",
		TotalMarks:         80,
		PassingMarks:       50,
		ExamDate:           "2026-10-01",
		SubmissionDeadline: "2026-10-02T18:00:00Z",
		DurationMinutes:    60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestExamServiceActivateWithoutQuestions(t *testing.T) {
	store := &mockExamStore{exams: map[string]*models.ObjectiveExam{examID: {
		ID: examID, TeacherID: teacherID, Status: models.ExamStatusDraft,
	}}}
	svc := newExamFixture(store, true)

	_, err := svc.UpdateStatus(context.Background(), examID, teacherClaims(), dto.UpdateExamStatusRequest{Status: "active"})
	assert.ErrorIs(t, err, appErrors.ErrNoQuestions)
}

func TestExamServiceActivate(t *testing.T) {
	store := &mockExamStore{
		exams:         map[string]*models.ObjectiveExam{examID: {ID: examID, TeacherID: teacherID, Status: models.ExamStatusDraft}},
		questionCount: 3,
	}
	svc := newExamFixture(store, true)

	exam, err := svc.UpdateStatus(context.Background(), examID, teacherClaims(), dto.UpdateExamStatusRequest{Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusActive, exam.Status)
	assert.Equal(t, models.ExamStatusActive, store.statusSet)
}

func TestExamServiceIllegalTransition(t *testing.T) {
	store := &mockExamStore{exams: map[string]*models.ObjectiveExam{examID: {
		ID: examID, TeacherID: teacherID, Status: models.ExamStatusActive,
	}}}
	svc := newExamFixture(store, true)

	_, err := svc.UpdateStatus(context.Background(), examID, teacherClaims(), dto.UpdateExamStatusRequest{Status: "draft"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestExamServiceReopenClosed(t *testing.T) {
	store := &mockExamStore{exams: map[string]*models.ObjectiveExam{examID: {
		ID: examID, TeacherID: teacherID, Status: models.ExamStatusClosed,
	}}}
	svc := newExamFixture(store, true)

	exam, err := svc.UpdateStatus(context.Background(), examID, teacherClaims(), dto.UpdateExamStatusRequest{Status: "draft"})
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusDraft, exam.Status)
}

func TestExamServiceGetOtherTeacher(t *testing.T) {
	store := &mockExamStore{exams: map[string]*models.ObjectiveExam{examID: {
		ID: examID, TeacherID: "other", Status: models.ExamStatusDraft,
	}}}
	svc := newExamFixture(store, true)

	_, err := svc.Get(context.Background(), examID, teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExamServiceAddQuestionNonDraft(t *testing.T) {
	store := &mockExamStore{exams: map[string]*models.ObjectiveExam{examID: {
		ID: examID, TeacherID: teacherID, Status: models.ExamStatusActive,
	}}}
	svc := newExamFixture(store, true)

	_, err := svc.AddQuestion(context.Background(), examID, teacherClaims(), dto.QuestionRequest{
		QuestionText: "Apa itu gaya?",
		MaxMarks:     10,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestExamServiceAddQuestion(t *testing.T) {
	store := &mockExamStore{exams: map[string]*models.ObjectiveExam{examID: {
		ID: examID, TeacherID: teacherID, Status: models.ExamStatusDraft,
	}}}
	svc := newExamFixture(store, true)

	question, err := svc.AddQuestion(context.Background(), examID, teacherClaims(), dto.QuestionRequest{
		QuestionText: "Apa itu gaya?",
		MaxMarks:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, question.QuestionNumber)
	assert.Equal(t, examID, question.ExamID)
}

func TestExamServiceDeleteQuestionNonDraft(t *testing.T) {
	store := &mockExamStore{
		exams:     map[string]*models.ObjectiveExam{examID: {ID: examID, TeacherID: teacherID, Status: models.ExamStatusActive}},
		questions: map[string]*models.ObjectiveQuestion{questionID: {ID: questionID, ExamID: examID}},
	}
	svc := newExamFixture(store, true)

	err := svc.DeleteQuestion(context.Background(), questionID, teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.deleted)
}
