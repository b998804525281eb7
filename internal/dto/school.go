package dto

// CreateSchoolRequest is the admin payload for registering a school.
type CreateSchoolRequest struct {
	Name          string  `json:"name" validate:"required,min=3"`
	Code          string  `json:"code" validate:"required,alphanum,min=3,max=10"`
	Address       string  `json:"address" validate:"required"`
	Latitude      float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64 `json:"longitude" validate:"gte=-180,lte=180"`
	AllowedRadius float64 `json:"allowed_radius" validate:"gt=0"`
}

// UpdateSchoolRequest carries the mutable school fields.
type UpdateSchoolRequest struct {
	Name          string  `json:"name" validate:"required,min=3"`
	Address       string  `json:"address" validate:"required"`
	Latitude      float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64 `json:"longitude" validate:"gte=-180,lte=180"`
	AllowedRadius float64 `json:"allowed_radius" validate:"gt=0"`
	Status        string  `json:"status" validate:"required,oneof=active inactive"`
}

// EnrollSchoolRequest is a teacher's request to join a school.
type EnrollSchoolRequest struct {
	SchoolID string `json:"school_id" validate:"required,uuid"`
}
