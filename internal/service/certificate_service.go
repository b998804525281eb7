package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
	"github.com/noah-isme/guru-portal-api/pkg/export"
	"github.com/noah-isme/guru-portal-api/pkg/jobs"
	"github.com/noah-isme/guru-portal-api/pkg/storage"
)

type certificateSubmissionReader interface {
	FindByID(ctx context.Context, id string) (*models.ObjectiveSubmission, error)
}

type certificateExamReader interface {
	FindByID(ctx context.Context, id string) (*models.ObjectiveExam, error)
}

type certificateUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type certificateSchoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type certificateStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type certificateRenderer interface {
	Render(data export.CertificateData) ([]byte, error)
}

type certificateQueue interface {
	Enqueue(job jobs.Job) error
}

// CertificateStatus reports where a certificate stands.
type CertificateStatus struct {
	SubmissionID string     `json:"submission_id"`
	Ready        bool       `json:"ready"`
	Token        string     `json:"token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// certificateJobPayload is what travels through the queue.
type certificateJobPayload struct {
	SubmissionID string
}

const certificateJobType = "certificate.render"

// CertificateService issues completion certificates for graded passing
// submissions. Rendering runs asynchronously on the jobs queue; the PDF file
// on disk is the record of completion and downloads go through signed URLs.
type CertificateService struct {
	submissions certificateSubmissionReader
	exams       certificateExamReader
	users       certificateUserReader
	schools     certificateSchoolReader
	storage     certificateStorage
	renderer    certificateRenderer
	signer      *storage.SignedURLSigner
	queue       certificateQueue
	logger      *zap.Logger
}

// NewCertificateService constructs a CertificateService. Call BindQueue with
// the jobs queue built around this service's HandleJob before serving.
func NewCertificateService(
	submissions certificateSubmissionReader,
	exams certificateExamReader,
	users certificateUserReader,
	schools certificateSchoolReader,
	store certificateStorage,
	renderer certificateRenderer,
	signer *storage.SignedURLSigner,
	logger *zap.Logger,
) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewCertificateRenderer()
	}
	return &CertificateService{
		submissions: submissions,
		exams:       exams,
		users:       users,
		schools:     schools,
		storage:     store,
		renderer:    renderer,
		signer:      signer,
		logger:      logger,
	}
}

// BindQueue attaches the worker queue used for async rendering.
func (s *CertificateService) BindQueue(queue certificateQueue) {
	s.queue = queue
}

// Request queues certificate generation for a graded passing submission.
// Students may only request their own certificate.
func (s *CertificateService) Request(ctx context.Context, submissionID string, claims *models.JWTClaims) (*CertificateStatus, error) {
	submission, _, err := s.eligibleSubmission(ctx, submissionID, claims)
	if err != nil {
		return nil, err
	}

	if status := s.status(submissionID); status.Ready {
		return status, nil
	}

	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "certificate generation is disabled")
	}
	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    certificateJobType,
		Payload: certificateJobPayload{SubmissionID: submission.ID},
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue certificate")
	}

	s.logger.Info("certificate queued", zap.String("submission_id", submissionID))
	return &CertificateStatus{SubmissionID: submissionID, Ready: false}, nil
}

// Get returns the certificate status with a signed download token once the
// PDF exists.
func (s *CertificateService) Get(ctx context.Context, submissionID string, claims *models.JWTClaims) (*CertificateStatus, error) {
	if _, _, err := s.eligibleSubmission(ctx, submissionID, claims); err != nil {
		return nil, err
	}
	return s.status(submissionID), nil
}

// HandleJob renders one certificate. Wired as the jobs queue handler.
func (s *CertificateService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(certificateJobPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	submission, err := s.submissions.FindByID(ctx, payload.SubmissionID)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}
	exam, err := s.exams.FindByID(ctx, submission.ExamID)
	if err != nil {
		return fmt.Errorf("load exam: %w", err)
	}
	student, err := s.users.FindByID(ctx, submission.StudentID)
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}
	school, err := s.schools.FindByID(ctx, exam.SchoolID)
	if err != nil {
		return fmt.Errorf("load school: %w", err)
	}

	gradedAt := time.Now().UTC()
	if submission.GradedAt != nil {
		gradedAt = *submission.GradedAt
	}

	pdf, err := s.renderer.Render(export.CertificateData{
		StudentName:  student.FullName,
		ExamTitle:    exam.Title,
		SchoolName:   school.Name,
		ScoredMarks:  submission.ScoredMarks,
		TotalMarks:   exam.TotalMarks,
		GradedAt:     gradedAt,
		SerialNumber: certificateSerial(submission.ID),
	})
	if err != nil {
		return fmt.Errorf("render certificate: %w", err)
	}

	if _, err := s.storage.Save(certificateFilename(submission.ID), pdf); err != nil {
		return fmt.Errorf("store certificate: %w", err)
	}

	s.logger.Info("certificate rendered",
		zap.String("submission_id", submission.ID),
		zap.String("student_id", submission.StudentID))
	return nil
}

func (s *CertificateService) eligibleSubmission(ctx context.Context, submissionID string, claims *models.JWTClaims) (*models.ObjectiveSubmission, *models.ObjectiveExam, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}

	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	if claims.Role == models.RoleStudent && submission.StudentID != claims.UserID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another student")
	}
	if submission.Status != models.SubmissionStatusGraded {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission is not graded yet")
	}

	exam, err := s.exams.FindByID(ctx, submission.ExamID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	if claims.Role == models.RoleTeacher && exam.TeacherID != claims.UserID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "exam belongs to another teacher")
	}
	if submission.ScoredMarks < exam.PassingMarks {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "certificates are only issued for passing scores")
	}
	return submission, exam, nil
}

func (s *CertificateService) status(submissionID string) *CertificateStatus {
	filename := certificateFilename(submissionID)
	file, err := s.storage.Open(filename)
	if err != nil {
		return &CertificateStatus{SubmissionID: submissionID, Ready: false}
	}
	_ = file.Close()

	token, expiresAt, err := s.signer.Generate(submissionID, filename)
	if err != nil {
		s.logger.Warn("failed to sign certificate url", zap.Error(err))
		return &CertificateStatus{SubmissionID: submissionID, Ready: false}
	}
	return &CertificateStatus{SubmissionID: submissionID, Ready: true, Token: token, ExpiresAt: &expiresAt}
}

func certificateFilename(submissionID string) string {
	return fmt.Sprintf("certificate_%s.pdf", submissionID)
}

func certificateSerial(submissionID string) string {
	compact := strings.ToUpper(strings.ReplaceAll(submissionID, "-", ""))
	if len(compact) > 16 {
		compact = compact[:16]
	}
	return "GP-" + compact
}
