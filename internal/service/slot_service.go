package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

const slotBrowseCachePrefix = "slots:browse:"

type slotStore interface {
	List(ctx context.Context, filter models.SlotFilter) ([]models.TeachingSlot, int, error)
	FindByID(ctx context.Context, id string) (*models.TeachingSlot, error)
	Create(ctx context.Context, slot *models.TeachingSlot) error
	UpdateStatus(ctx context.Context, id string, status models.SlotStatus) error
	BrowseForTeacher(ctx context.Context, teacherID string, from time.Time) ([]dto.SlotBrowseItem, error)
}

type slotSchoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type slotBookingReader interface {
	FindActiveForTeacher(ctx context.Context, teacherID string, today time.Time) (*models.SlotBookingDetail, error)
}

type browseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// SlotService manages teaching slots: admin publication, status control and
// the teacher-facing browse listing. Browse responses are cached per teacher
// briefly; any capacity change flushes the whole browse prefix.
type SlotService struct {
	repo      slotStore
	schools   slotSchoolReader
	bookings  slotBookingReader
	cache     browseCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSlotService constructs a SlotService.
func NewSlotService(
	repo slotStore,
	schools slotSchoolReader,
	bookings slotBookingReader,
	cache browseCache,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		repo:      repo,
		schools:   schools,
		bookings:  bookings,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// List returns slots for admin views.
func (s *SlotService) List(ctx context.Context, filter models.SlotFilter) ([]models.TeachingSlot, int, error) {
	slots, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	return slots, total, nil
}

// Get returns a single slot.
func (s *SlotService) Get(ctx context.Context, id string) (*models.TeachingSlot, error) {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	return slot, nil
}

// Create publishes a new teaching slot at an active school.
func (s *SlotService) Create(ctx context.Context, req dto.CreateSlotRequest) (*models.TeachingSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if req.EndTime <= req.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	school, err := s.schools.FindByID(ctx, req.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	if school.Status != models.SchoolStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "school is inactive")
	}

	slotDate, err := time.Parse("2006-01-02", req.SlotDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot_date must be YYYY-MM-DD")
	}

	now := time.Now().UTC()
	slot := &models.TeachingSlot{
		ID:               uuid.NewString(),
		SchoolID:         req.SchoolID,
		SlotDate:         slotDate,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		TeachersRequired: req.TeachersRequired,
		TeachersEnrolled: 0,
		Status:           models.SlotStatusOpen,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}

	s.invalidateBrowseCache(ctx)
	s.logger.Info("slot published",
		zap.String("slot_id", slot.ID),
		zap.String("school_id", slot.SchoolID),
		zap.Int("teachers_required", slot.TeachersRequired))
	return slot, nil
}

// Close moves a slot to completed or cancelled. Capacity-derived statuses
// are never set through this path.
func (s *SlotService) Close(ctx context.Context, id string, req dto.UpdateSlotStatusRequest) (*models.TeachingSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	slot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if slot.Status == models.SlotStatusCompleted || slot.Status == models.SlotStatusCancelled {
		return nil, appErrors.ErrSlotClosed
	}

	status := models.SlotStatus(req.Status)
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update slot status")
	}
	slot.Status = status

	s.invalidateBrowseCache(ctx)
	return slot, nil
}

// Browse returns the bookable slot listing for a teacher, together with the
// teacher's current active booking. The listing is cached per teacher.
func (s *SlotService) Browse(ctx context.Context, teacherID string) (*dto.SlotBrowseResult, error) {
	key := slotBrowseCachePrefix + teacherID

	var cached dto.SlotBrowseResult
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		cached.FromCache = true
		return &cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("browse cache read failed", zap.Error(err))
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	slots, err := s.repo.BrowseForTeacher(ctx, teacherID, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to browse slots")
	}

	active, err := s.bookings.FindActiveForTeacher(ctx, teacherID, today)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active booking")
	}

	hasActive := active != nil
	for i := range slots {
		slots[i].Bookable = slots[i].SpotsLeft > 0 && !slots[i].AlreadyBooked && !hasActive
	}

	result := &dto.SlotBrowseResult{Slots: slots, ActiveBooking: active}
	if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
		s.logger.Warn("browse cache write failed", zap.Error(err))
	}
	return result, nil
}

func (s *SlotService) invalidateBrowseCache(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("%s*", slotBrowseCachePrefix)); err != nil {
		s.logger.Warn("browse cache invalidation failed", zap.Error(err))
	}
}
