package dto

// SubmitSessionProofRequest accompanies the start and end photo uploads with
// the GPS fix captured on the teacher's device.
type SubmitSessionProofRequest struct {
	Latitude  float64 `form:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude float64 `form:"longitude" validate:"required,gte=-180,lte=180"`
}

// VerifySessionRequest is the admin approve/reject decision.
type VerifySessionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
}

// SessionProofURLs carries short-lived download links for a session's photos.
type SessionProofURLs struct {
	StartPhotoURL string `json:"start_photo_url,omitempty"`
	EndPhotoURL   string `json:"end_photo_url,omitempty"`
}
