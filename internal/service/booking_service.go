package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	"github.com/noah-isme/guru-portal-api/internal/repository"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

type bookingStore interface {
	FindByID(ctx context.Context, id string) (*models.SlotBooking, error)
	ListForTeacher(ctx context.Context, teacherID string) ([]models.SlotBookingDetail, error)
	Book(ctx context.Context, slotID, teacherID string, now time.Time) (*models.SlotBooking, error)
	Cancel(ctx context.Context, params repository.CancelParams) error
}

type bookingEnrollmentChecker interface {
	FindActiveEnrollment(ctx context.Context, teacherID, schoolID string) (*models.TeacherSchoolEnrollment, error)
}

type bookingSlotReader interface {
	FindByID(ctx context.Context, id string) (*models.TeachingSlot, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// BookingService enforces the slot reservation rules: one active booking per
// teacher, enrollment at the slot's school, and the time-windowed
// cancellation policy. The capacity-sensitive steps live in the repository
// transactions; the service owns the checks that don't need row locks.
type BookingService struct {
	repo        bookingStore
	slots       bookingSlotReader
	enrollments bookingEnrollmentChecker
	cache       browseCache
	audit       auditLogger
	deadline    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewBookingService constructs a BookingService.
func NewBookingService(
	repo bookingStore,
	slots bookingSlotReader,
	enrollments bookingEnrollmentChecker,
	cache browseCache,
	audit auditLogger,
	deadline time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deadline <= 0 {
		deadline = 24 * time.Hour
	}
	return &BookingService{
		repo:        repo,
		slots:       slots,
		enrollments: enrollments,
		cache:       cache,
		audit:       audit,
		deadline:    deadline,
		validator:   validate,
		logger:      logger,
	}
}

// MyBookings returns the teacher's booking history, newest first.
func (s *BookingService) MyBookings(ctx context.Context, teacherID string) ([]models.SlotBookingDetail, error) {
	bookings, err := s.repo.ListForTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// Book reserves a spot in the slot for the teacher. The teacher must be
// enrolled at the slot's school; every other rule is enforced inside the
// booking transaction.
func (s *BookingService) Book(ctx context.Context, slotID, teacherID string) (*models.SlotBooking, error) {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	enrollment, err := s.enrollments.FindActiveEnrollment(ctx, teacherID, slot.SchoolID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrollment == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled at this school")
	}

	booking, err := s.repo.Book(ctx, slotID, teacherID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.invalidateBrowseCache(ctx)
	s.recordAudit(ctx, teacherID, models.AuditActionSlotBook, booking.ID, map[string]string{
		"slot_id": slotID,
	})
	s.logger.Info("slot booked",
		zap.String("booking_id", booking.ID),
		zap.String("slot_id", slotID),
		zap.String("teacher_id", teacherID))
	return booking, nil
}

// Cancel releases a booking under the cancellation policy and returns the
// spot to the slot.
func (s *BookingService) Cancel(ctx context.Context, bookingID, teacherID string, req dto.CancelBookingRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}

	err := s.repo.Cancel(ctx, repository.CancelParams{
		BookingID: bookingID,
		TeacherID: teacherID,
		Reason:    req.Reason,
		Now:       time.Now().UTC(),
		Deadline:  s.deadline,
	})
	if err != nil {
		return err
	}

	s.invalidateBrowseCache(ctx)
	s.recordAudit(ctx, teacherID, models.AuditActionSlotCancel, bookingID, map[string]string{
		"reason": req.Reason,
	})
	s.logger.Info("booking cancelled",
		zap.String("booking_id", bookingID),
		zap.String("teacher_id", teacherID))
	return nil
}

func (s *BookingService) invalidateBrowseCache(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, slotBrowseCachePrefix+"*"); err != nil {
		s.logger.Warn("browse cache invalidation failed", zap.Error(err))
	}
}

func (s *BookingService) recordAudit(ctx context.Context, userID, action, resourceID string, values map[string]string) {
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "booking",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record booking audit log", zap.Error(err))
	}
}
