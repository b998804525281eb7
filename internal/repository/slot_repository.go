package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
)

// SlotRepository handles persistence of teaching slots.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// List returns slots filtered by the provided criteria.
func (r *SlotRepository) List(ctx context.Context, filter models.SlotFilter) ([]models.TeachingSlot, int, error) {
	base := `FROM teaching_slots WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("slot_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("slot_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"slot_date":  "slot_date",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "slot_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, school_id, slot_date, start_time, end_time, teachers_required, teachers_enrolled, status, created_at, updated_at
        %s ORDER BY %s %s, start_time ASC LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var slots []models.TeachingSlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list slots: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count slots: %w", err)
	}
	return slots, total, nil
}

// FindByID returns a slot by its ID.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.TeachingSlot, error) {
	const query = `SELECT id, school_id, slot_date, start_time, end_time, teachers_required, teachers_enrolled, status, created_at, updated_at FROM teaching_slots WHERE id = $1`
	var slot models.TeachingSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Create persists a new teaching slot.
func (r *SlotRepository) Create(ctx context.Context, slot *models.TeachingSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
	if slot.Status == "" {
		slot.Status = models.SlotStatusOpen
	}
	const query = `INSERT INTO teaching_slots (id, school_id, slot_date, start_time, end_time, teachers_required, teachers_enrolled, status, created_at, updated_at)
        VALUES (:id, :school_id, :slot_date, :start_time, :end_time, :teachers_required, :teachers_enrolled, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// UpdateStatus moves a slot into a terminal administrative state
// (completed or cancelled).
func (r *SlotRepository) UpdateStatus(ctx context.Context, id string, status models.SlotStatus) error {
	const query = `UPDATE teaching_slots SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	return nil
}

// BrowseForTeacher lists upcoming bookable slots enriched with the
// requesting teacher's per-slot booking state. Terminal slots are excluded.
func (r *SlotRepository) BrowseForTeacher(ctx context.Context, teacherID string, from time.Time) ([]dto.SlotBrowseItem, error) {
	const query = `SELECT t.id, t.school_id, sc.name AS school_name, t.slot_date, t.start_time, t.end_time,
        t.teachers_required, t.teachers_enrolled, t.status,
        GREATEST(t.teachers_required - t.teachers_enrolled, 0) AS spots_left,
        EXISTS (
            SELECT 1 FROM slot_bookings b
            WHERE b.slot_id = t.id AND b.teacher_id = $1 AND b.status = 'booked'
        ) AS already_booked
        FROM teaching_slots t
        JOIN schools sc ON sc.id = t.school_id
        WHERE t.slot_date >= $2 AND t.status NOT IN ('completed', 'cancelled') AND sc.status = 'active'
        ORDER BY t.slot_date ASC, t.start_time ASC`
	var items []dto.SlotBrowseItem
	if err := r.db.SelectContext(ctx, &items, query, teacherID, from); err != nil {
		return nil, fmt.Errorf("browse slots: %w", err)
	}
	return items, nil
}
