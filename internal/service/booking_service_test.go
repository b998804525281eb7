package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	"github.com/noah-isme/guru-portal-api/internal/repository"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

type mockBookingStore struct {
	bookErr      error
	cancelErr    error
	booked       []string
	cancelParams *repository.CancelParams
	listings     []models.SlotBookingDetail
}

func (m *mockBookingStore) FindByID(ctx context.Context, id string) (*models.SlotBooking, error) {
	return nil, sql.ErrNoRows
}

func (m *mockBookingStore) ListForTeacher(ctx context.Context, teacherID string) ([]models.SlotBookingDetail, error) {
	return m.listings, nil
}

func (m *mockBookingStore) Book(ctx context.Context, slotID, teacherID string, now time.Time) (*models.SlotBooking, error) {
	if m.bookErr != nil {
		return nil, m.bookErr
	}
	m.booked = append(m.booked, slotID)
	return &models.SlotBooking{ID: "b1", SlotID: slotID, TeacherID: teacherID, Status: models.BookingStatusBooked}, nil
}

func (m *mockBookingStore) Cancel(ctx context.Context, params repository.CancelParams) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelParams = &params
	return nil
}

type mockSlotReader struct {
	slots map[string]*models.TeachingSlot
}

func (m *mockSlotReader) FindByID(ctx context.Context, id string) (*models.TeachingSlot, error) {
	if slot, ok := m.slots[id]; ok {
		return slot, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnrollmentChecker struct {
	enrolled map[string]bool
}

func (m *mockEnrollmentChecker) FindActiveEnrollment(ctx context.Context, teacherID, schoolID string) (*models.TeacherSchoolEnrollment, error) {
	if m.enrolled[teacherID+schoolID] {
		return &models.TeacherSchoolEnrollment{ID: "en1", TeacherID: teacherID, SchoolID: schoolID, Status: models.SchoolEnrollmentActive}, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditLog struct {
	logs []models.AuditLog
}

func (m *mockAuditLog) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func newBookingFixture(store *mockBookingStore, slots *mockSlotReader, enrollments *mockEnrollmentChecker) (*BookingService, *mockBrowseCache, *mockAuditLog) {
	cache := &mockBrowseCache{}
	audit := &mockAuditLog{}
	svc := NewBookingService(store, slots, enrollments, cache, audit, 24*time.Hour, validator.New(), zap.NewNop())
	return svc, cache, audit
}

func TestBookingServiceBook(t *testing.T) {
	store := &mockBookingStore{}
	slots := &mockSlotReader{slots: map[string]*models.TeachingSlot{"slot-1": {ID: "slot-1", SchoolID: "school-1", Status: models.SlotStatusOpen}}}
	enrollments := &mockEnrollmentChecker{enrolled: map[string]bool{"t1school-1": true}}
	svc, cache, audit := newBookingFixture(store, slots, enrollments)

	booking, err := svc.Book(context.Background(), "slot-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusBooked, booking.Status)
	assert.Contains(t, store.booked, "slot-1")
	assert.True(t, cache.invalidated)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSlotBook, audit.logs[0].Action)
}

func TestBookingServiceBookNotEnrolled(t *testing.T) {
	store := &mockBookingStore{}
	slots := &mockSlotReader{slots: map[string]*models.TeachingSlot{"slot-1": {ID: "slot-1", SchoolID: "school-1"}}}
	svc, _, _ := newBookingFixture(store, slots, &mockEnrollmentChecker{})

	_, err := svc.Book(context.Background(), "slot-1", "t1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.booked)
}

func TestBookingServiceBookSlotMissing(t *testing.T) {
	svc, _, _ := newBookingFixture(&mockBookingStore{}, &mockSlotReader{}, &mockEnrollmentChecker{})

	_, err := svc.Book(context.Background(), "nope", "t1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceBookRepoErrorPassthrough(t *testing.T) {
	store := &mockBookingStore{bookErr: appErrors.ErrSlotFull}
	slots := &mockSlotReader{slots: map[string]*models.TeachingSlot{"slot-1": {ID: "slot-1", SchoolID: "school-1"}}}
	enrollments := &mockEnrollmentChecker{enrolled: map[string]bool{"t1school-1": true}}
	svc, cache, _ := newBookingFixture(store, slots, enrollments)

	_, err := svc.Book(context.Background(), "slot-1", "t1")
	assert.ErrorIs(t, err, appErrors.ErrSlotFull)
	assert.False(t, cache.invalidated)
}

func TestBookingServiceCancel(t *testing.T) {
	store := &mockBookingStore{}
	svc, cache, audit := newBookingFixture(store, &mockSlotReader{}, &mockEnrollmentChecker{})

	err := svc.Cancel(context.Background(), "b1", "t1", dto.CancelBookingRequest{Reason: "schedule conflict"})
	require.NoError(t, err)
	require.NotNil(t, store.cancelParams)
	assert.Equal(t, "b1", store.cancelParams.BookingID)
	assert.Equal(t, "t1", store.cancelParams.TeacherID)
	assert.Equal(t, 24*time.Hour, store.cancelParams.Deadline)
	assert.True(t, cache.invalidated)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSlotCancel, audit.logs[0].Action)
}

func TestBookingServiceCancelInvalidReason(t *testing.T) {
	store := &mockBookingStore{}
	svc, _, _ := newBookingFixture(store, &mockSlotReader{}, &mockEnrollmentChecker{})

	err := svc.Cancel(context.Background(), "b1", "t1", dto.CancelBookingRequest{Reason: ""})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, store.cancelParams)
}

func TestBookingServiceCancelWindowPassthrough(t *testing.T) {
	store := &mockBookingStore{cancelErr: appErrors.ErrCancellationWindow}
	svc, _, _ := newBookingFixture(store, &mockSlotReader{}, &mockEnrollmentChecker{})

	err := svc.Cancel(context.Background(), "b1", "t1", dto.CancelBookingRequest{Reason: "sick leave"})
	assert.ErrorIs(t, err, appErrors.ErrCancellationWindow)
}
