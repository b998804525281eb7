package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
)

type mockBrowseCache struct {
	entries     map[string][]byte
	invalidated bool
}

func (m *mockBrowseCache) Get(ctx context.Context, key string, dest interface{}) error {
	if raw, ok := m.entries[key]; ok {
		return json.Unmarshal(raw, dest)
	}
	return appErrors.ErrCacheMiss
}

func (m *mockBrowseCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockBrowseCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated = true
	m.entries = nil
	return nil
}

type mockSlotStore struct {
	slots      map[string]*models.TeachingSlot
	browse     []dto.SlotBrowseItem
	browseHits int
	created    *models.TeachingSlot
	statusSet  models.SlotStatus
}

func (m *mockSlotStore) List(ctx context.Context, filter models.SlotFilter) ([]models.TeachingSlot, int, error) {
	return nil, 0, nil
}

func (m *mockSlotStore) FindByID(ctx context.Context, id string) (*models.TeachingSlot, error) {
	if slot, ok := m.slots[id]; ok {
		return slot, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSlotStore) Create(ctx context.Context, slot *models.TeachingSlot) error {
	m.created = slot
	return nil
}

func (m *mockSlotStore) UpdateStatus(ctx context.Context, id string, status models.SlotStatus) error {
	m.statusSet = status
	return nil
}

func (m *mockSlotStore) BrowseForTeacher(ctx context.Context, teacherID string, from time.Time) ([]dto.SlotBrowseItem, error) {
	m.browseHits++
	return m.browse, nil
}

type mockActiveBookingReader struct {
	active *models.SlotBookingDetail
}

func (m *mockActiveBookingReader) FindActiveForTeacher(ctx context.Context, teacherID string, today time.Time) (*models.SlotBookingDetail, error) {
	if m.active == nil {
		return nil, sql.ErrNoRows
	}
	return m.active, nil
}

type mockSchoolReader struct {
	schools map[string]*models.School
}

func (m *mockSchoolReader) FindByID(ctx context.Context, id string) (*models.School, error) {
	if school, ok := m.schools[id]; ok {
		return school, nil
	}
	return nil, sql.ErrNoRows
}

func newSlotFixture(store *mockSlotStore, schools *mockSchoolReader, bookings *mockActiveBookingReader) (*SlotService, *mockBrowseCache) {
	cache := &mockBrowseCache{}
	svc := NewSlotService(store, schools, bookings, cache, time.Minute, validator.New(), zap.NewNop())
	return svc, cache
}

func TestSlotServiceBrowseFlagsAndCaches(t *testing.T) {
	store := &mockSlotStore{browse: []dto.SlotBrowseItem{
		{ID: "s1", SpotsLeft: 2},
		{ID: "s2", SpotsLeft: 0},
		{ID: "s3", SpotsLeft: 1, AlreadyBooked: true},
	}}
	svc, cache := newSlotFixture(store, &mockSchoolReader{}, &mockActiveBookingReader{})

	result, err := svc.Browse(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, result.Slots, 3)
	assert.True(t, result.Slots[0].Bookable)
	assert.False(t, result.Slots[1].Bookable)
	assert.False(t, result.Slots[2].Bookable)
	assert.Nil(t, result.ActiveBooking)
	assert.Contains(t, cache.entries, slotBrowseCachePrefix+"t1")
}

func TestSlotServiceBrowseCacheHit(t *testing.T) {
	store := &mockSlotStore{browse: []dto.SlotBrowseItem{{ID: "s1", SpotsLeft: 2}}}
	svc, _ := newSlotFixture(store, &mockSchoolReader{}, &mockActiveBookingReader{})

	_, err := svc.Browse(context.Background(), "t1")
	require.NoError(t, err)
	_, err = svc.Browse(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.browseHits)
}

func TestSlotServiceBrowseActiveBookingBlocksAll(t *testing.T) {
	store := &mockSlotStore{browse: []dto.SlotBrowseItem{{ID: "s1", SpotsLeft: 5}}}
	active := &models.SlotBookingDetail{SlotBooking: models.SlotBooking{ID: "b1", Status: models.BookingStatusBooked}}
	svc, _ := newSlotFixture(store, &mockSchoolReader{}, &mockActiveBookingReader{active: active})

	result, err := svc.Browse(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, result.Slots[0].Bookable)
	require.NotNil(t, result.ActiveBooking)
	assert.Equal(t, "b1", result.ActiveBooking.ID)
}

func TestSlotServiceCreate(t *testing.T) {
	store := &mockSlotStore{}
	schools := &mockSchoolReader{schools: map[string]*models.School{
		"3f6d3c52-0040-4b6b-96a1-74e85a9f2a11": {ID: "3f6d3c52-0040-4b6b-96a1-74e85a9f2a11", Status: models.SchoolStatusActive},
	}}
	svc, cache := newSlotFixture(store, schools, &mockActiveBookingReader{})

	slot, err := svc.Create(context.Background(), dto.CreateSlotRequest{
		SchoolID:         "3f6d3c52-0040-4b6b-96a1-74e85a9f2a11",
		SlotDate:         "2026-09-15",
		StartTime:        "08:00",
		EndTime:          "10:00",
		TeachersRequired: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusOpen, slot.Status)
	assert.Equal(t, 0, slot.TeachersEnrolled)
	assert.NotNil(t, store.created)
	assert.True(t, cache.invalidated)
}

func TestSlotServiceCreateInactiveSchool(t *testing.T) {
	schools := &mockSchoolReader{schools: map[string]*models.School{
		"3f6d3c52-0040-4b6b-96a1-74e85a9f2a11": {ID: "3f6d3c52-0040-4b6b-96a1-74e85a9f2a11", Status: models.SchoolStatusInactive},
	}}
	svc, _ := newSlotFixture(&mockSlotStore{}, schools, &mockActiveBookingReader{})

	_, err := svc.Create(context.Background(), dto.CreateSlotRequest{
		SchoolID:         "3f6d3c52-0040-4b6b-96a1-74e85a9f2a11",
		SlotDate:         "2026-09-15",
		StartTime:        "08:00",
		EndTime:          "10:00",
		TeachersRequired: 3,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceCreateEndBeforeStart(t *testing.T) {
	svc, _ := newSlotFixture(&mockSlotStore{}, &mockSchoolReader{}, &mockActiveBookingReader{})

	_, err := svc.Create(context.Background(), dto.CreateSlotRequest{
		SchoolID:         "3f6d3c52-0040-4b6b-96a1-74e85a9f2a11",
		SlotDate:         "2026-09-15",
		StartTime:        "10:00",
		EndTime:          "08:00",
		TeachersRequired: 3,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceCloseTerminal(t *testing.T) {
	store := &mockSlotStore{slots: map[string]*models.TeachingSlot{"s1": {ID: "s1", Status: models.SlotStatusCancelled}}}
	svc, _ := newSlotFixture(store, &mockSchoolReader{}, &mockActiveBookingReader{})

	_, err := svc.Close(context.Background(), "s1", dto.UpdateSlotStatusRequest{Status: "completed"})
	assert.ErrorIs(t, err, appErrors.ErrSlotClosed)
}

func TestSlotServiceClose(t *testing.T) {
	store := &mockSlotStore{slots: map[string]*models.TeachingSlot{"s1": {ID: "s1", Status: models.SlotStatusFull}}}
	svc, cache := newSlotFixture(store, &mockSchoolReader{}, &mockActiveBookingReader{})

	slot, err := svc.Close(context.Background(), "s1", dto.UpdateSlotStatusRequest{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusCompleted, slot.Status)
	assert.Equal(t, models.SlotStatusCompleted, store.statusSet)
	assert.True(t, cache.invalidated)
}
