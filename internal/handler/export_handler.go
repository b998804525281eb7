package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/guru-portal-api/internal/service"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
	"github.com/noah-isme/guru-portal-api/pkg/response"
)

// ExportHandler handles exam result export endpoints.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// ResultsCSV godoc
// @Summary Export exam results
// @Description Render the exam's result sheet to CSV and return a signed
// download token
// @Tags Exports
// @Produce json
// @Param id path string true "Exam ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exams/{id}/export [post]
func (h *ExportHandler) ResultsCSV(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports are disabled"))
		return
	}

	result, err := h.service.GenerateResultsCSV(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, result, nil)
}
