package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/service"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
	"github.com/noah-isme/guru-portal-api/pkg/response"
)

// SessionHandler handles teaching session verification endpoints.
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// MySessions godoc
// @Summary My sessions
// @Description List the authenticated teacher's teaching sessions
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /teacher/sessions [get]
func (h *SessionHandler) MySessions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.service.MySessions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, nil)
}

// PendingReview godoc
// @Summary Sessions pending review
// @Description List sessions with submitted photos awaiting a decision
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions/pending [get]
func (h *SessionHandler) PendingReview(c *gin.Context) {
	sessions, err := h.service.PendingReview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, nil)
}

// SubmitProof godoc
// @Summary Submit session proof
// @Description Upload start and end photos with the GPS fix for a pending session
// @Tags Sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param latitude formData number true "Latitude"
// @Param longitude formData number true "Longitude"
// @Param start_photo formData file true "Start photo"
// @Param end_photo formData file true "End photo"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/sessions/{id}/proof [post]
func (h *SessionHandler) SubmitProof(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SubmitSessionProofRequest
	if lat, err := strconv.ParseFloat(c.PostForm("latitude"), 64); err == nil {
		req.Latitude = lat
	}
	if lon, err := strconv.ParseFloat(c.PostForm("longitude"), 64); err == nil {
		req.Longitude = lon
	}

	startPhoto, err := formPhoto(c, "start_photo")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer startPhoto.close()
	endPhoto, err := formPhoto(c, "end_photo")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer endPhoto.close()

	session, err := h.service.SubmitProof(c.Request.Context(), c.Param("id"), claims.UserID, req, startPhoto.upload, endPhoto.upload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// Verify godoc
// @Summary Verify session
// @Description Approve or reject a submitted session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.VerifySessionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/verify [put]
func (h *SessionHandler) Verify(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.VerifySessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	session, err := h.service.Verify(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// ProofURLs godoc
// @Summary Session proof download links
// @Description Short-lived signed download tokens for a session's photos
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id}/photos [get]
func (h *SessionHandler) ProofURLs(c *gin.Context) {
	claims := claimsFromContext(c)

	urls, err := h.service.ProofURLs(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, urls, nil)
}

type formUpload struct {
	upload service.PhotoUpload
	src    interface{ Close() error }
}

func (f formUpload) close() {
	if f.src != nil {
		_ = f.src.Close()
	}
}

func formPhoto(c *gin.Context, field string) (formUpload, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return formUpload{}, appErrors.Clone(appErrors.ErrValidation, field+" is required")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return formUpload{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open "+field)
	}
	return formUpload{
		upload: service.PhotoUpload{
			Filename: fileHeader.Filename,
			Size:     fileHeader.Size,
			Reader:   src,
		},
		src: src,
	}, nil
}
