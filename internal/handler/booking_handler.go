package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/service"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
	"github.com/noah-isme/guru-portal-api/pkg/response"
)

// BookingHandler handles slot booking endpoints for teachers.
type BookingHandler struct {
	service *service.BookingService
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// MyBookings godoc
// @Summary My bookings
// @Description List the authenticated teacher's bookings
// @Tags Bookings
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /teacher/bookings [get]
func (h *BookingHandler) MyBookings(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	bookings, err := h.service.MyBookings(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, bookings, nil)
}

// Book godoc
// @Summary Book a slot
// @Description Book a spot on an open teaching slot
// @Tags Bookings
// @Produce json
// @Param id path string true "Slot ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/slots/{id}/book [post]
func (h *BookingHandler) Book(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	booking, err := h.service.Book(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, booking)
}

// Cancel godoc
// @Summary Cancel a booking
// @Description Cancel a booking before the cancellation window closes
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.CancelBookingRequest true "Cancellation reason"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/bookings/{id} [delete]
func (h *BookingHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
