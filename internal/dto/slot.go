package dto

// CreateSlotRequest is the admin payload for publishing a teaching slot.
type CreateSlotRequest struct {
	SchoolID         string `json:"school_id" validate:"required,uuid"`
	SlotDate         string `json:"slot_date" validate:"required,datetime=2006-01-02"`
	StartTime        string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime          string `json:"end_time" validate:"required,datetime=15:04"`
	TeachersRequired int    `json:"teachers_required" validate:"required,gte=1,lte=50"`
}

// UpdateSlotStatusRequest moves a slot to a terminal state.
type UpdateSlotStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=completed cancelled"`
}
