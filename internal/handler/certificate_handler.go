package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/guru-portal-api/internal/service"
	"github.com/noah-isme/guru-portal-api/pkg/response"
)

// CertificateHandler handles certificate issuance endpoints.
type CertificateHandler struct {
	service *service.CertificateService
}

// NewCertificateHandler creates a new certificate handler.
func NewCertificateHandler(svc *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{service: svc}
}

// Request godoc
// @Summary Request certificate
// @Description Queue certificate generation for a graded passing submission
// @Tags Certificates
// @Produce json
// @Param id path string true "Submission ID"
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /submissions/{id}/certificate [post]
func (h *CertificateHandler) Request(c *gin.Context) {
	status, err := h.service.Request(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	code := http.StatusAccepted
	if status.Ready {
		code = http.StatusOK
	}
	response.JSON(c, code, status, nil)
}

// Get godoc
// @Summary Certificate status
// @Description Check whether a certificate is ready and obtain a download token
// @Tags Certificates
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions/{id}/certificate [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	status, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, status, nil)
}
