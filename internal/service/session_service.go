package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
	"github.com/noah-isme/guru-portal-api/pkg/storage"
)

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

type sessionStore interface {
	FindByID(ctx context.Context, id string) (*models.SessionDetail, error)
	FindByBookingID(ctx context.Context, bookingID string) (*models.SessionDetail, error)
	ListForTeacher(ctx context.Context, teacherID string) ([]models.SessionDetail, error)
	ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.SessionDetail, error)
	SubmitProof(ctx context.Context, session *models.TeachingSession) error
	Verify(ctx context.Context, sessionID, adminID string, status models.SessionStatus) error
}

type sessionSchoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type photoStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
}

// SessionService handles teaching session verification: photo proof uploads,
// GPS distance checks against the school location, and the admin decision.
type SessionService struct {
	repo         sessionStore
	schools      sessionSchoolReader
	storage      photoStorage
	signer       *storage.SignedURLSigner
	maxPhotoSize int64
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(
	repo sessionStore,
	schools sessionSchoolReader,
	store photoStorage,
	signer *storage.SignedURLSigner,
	maxPhotoSize int64,
	validate *validator.Validate,
	logger *zap.Logger,
) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:         repo,
		schools:      schools,
		storage:      store,
		signer:       signer,
		maxPhotoSize: maxPhotoSize,
		validator:    validate,
		logger:       logger,
	}
}

// MySessions lists the teacher's sessions.
func (s *SessionService) MySessions(ctx context.Context, teacherID string) ([]models.SessionDetail, error) {
	sessions, err := s.repo.ListForTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// PendingReview lists sessions awaiting an admin decision.
func (s *SessionService) PendingReview(ctx context.Context) ([]models.SessionDetail, error) {
	sessions, err := s.repo.ListByStatus(ctx, models.SessionStatusPhotoSubmitted)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// PhotoUpload is one uploaded proof photo.
type PhotoUpload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// SubmitProof stores the start and end photos, computes the GPS distance to
// the school and moves the session to photo_submitted. The session must
// belong to the teacher and still be pending.
func (s *SessionService) SubmitProof(ctx context.Context, sessionID, teacherID string, req dto.SubmitSessionProofRequest, startPhoto, endPhoto PhotoUpload) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid proof payload")
	}
	for _, photo := range []PhotoUpload{startPhoto, endPhoto} {
		if photo.Reader == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "both photos are required")
		}
		if s.maxPhotoSize > 0 && photo.Size > s.maxPhotoSize {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("photo exceeds %d bytes", s.maxPhotoSize))
		}
		if !allowedPhotoExt(photo.Filename) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "photo must be jpg, jpeg or png")
		}
	}

	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher")
	}
	if session.Status != models.SessionStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "session proof already submitted")
	}

	school, err := s.schools.FindByID(ctx, session.SchoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	startPath, err := s.storage.SaveStream(proofFilename(sessionID, "start", startPhoto.Filename), startPhoto.Reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store start photo")
	}
	endPath, err := s.storage.SaveStream(proofFilename(sessionID, "end", endPhoto.Filename), endPhoto.Reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store end photo")
	}

	distance := HaversineMeters(req.Latitude, req.Longitude, school.Latitude, school.Longitude)
	within := distance <= school.AllowedRadius

	updated := session.TeachingSession
	updated.StartPhotoPath = &startPath
	updated.EndPhotoPath = &endPath
	updated.Latitude = &req.Latitude
	updated.Longitude = &req.Longitude
	updated.DistanceMeters = &distance
	updated.WithinRadius = &within

	if err := s.repo.SubmitProof(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit proof")
	}

	if !within {
		s.logger.Warn("session proof outside school radius",
			zap.String("session_id", sessionID),
			zap.Float64("distance_meters", distance),
			zap.Float64("allowed_radius", school.AllowedRadius))
	}

	session.TeachingSession = updated
	session.Status = models.SessionStatusPhotoSubmitted
	return session, nil
}

// Verify records the admin decision on a submitted session.
func (s *SessionService) Verify(ctx context.Context, sessionID, adminID string, req dto.VerifySessionRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status != models.SessionStatusPhotoSubmitted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "session is not awaiting verification")
	}

	status := models.SessionStatus(req.Decision)
	if err := s.repo.Verify(ctx, sessionID, adminID, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify session")
	}

	now := time.Now().UTC()
	session.Status = status
	session.VerifiedBy = &adminID
	session.VerifiedAt = &now
	return session, nil
}

// ProofURLs issues short-lived download links for a session's photos. Both
// the owning teacher and admins may request them.
func (s *SessionService) ProofURLs(ctx context.Context, sessionID string, claims *models.JWTClaims) (*dto.SessionProofURLs, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if claims.Role == models.RoleTeacher && session.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher")
	}

	urls := &dto.SessionProofURLs{}
	if session.StartPhotoPath != nil {
		token, _, err := s.signer.Generate(sessionID, *session.StartPhotoPath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign photo url")
		}
		urls.StartPhotoURL = token
	}
	if session.EndPhotoPath != nil {
		token, _, err := s.signer.Generate(sessionID, *session.EndPhotoPath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign photo url")
		}
		urls.EndPhotoURL = token
	}
	return urls, nil
}

func allowedPhotoExt(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

func proofFilename(sessionID, kind, original string) string {
	return fmt.Sprintf("%s_%s%s", sessionID, kind, strings.ToLower(filepath.Ext(original)))
}
