package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	"github.com/noah-isme/guru-portal-api/internal/service"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
	"github.com/noah-isme/guru-portal-api/pkg/response"
)

// GradingHandler handles submission intake, the OCR and AI grading callbacks
// and manual grading endpoints.
type GradingHandler struct {
	service *service.GradingService
}

// NewGradingHandler creates a new grading handler.
func NewGradingHandler(svc *service.GradingService) *GradingHandler {
	return &GradingHandler{service: svc}
}

// Submit godoc
// @Summary Submit answer sheet
// @Description Upload the student's handwritten answer sheet for an active exam
// @Tags Grading
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Exam ID"
// @Param answer_sheet formData file true "Answer sheet photo"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /exams/{id}/submissions [post]
func (h *GradingHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	answer, err := formPhoto(c, "answer_sheet")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer answer.close()

	submission, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID, answer.upload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, submission)
}

// ListSubmissions godoc
// @Summary List submissions
// @Description List submissions for an exam owned by the teacher
// @Tags Grading
// @Produce json
// @Param id path string true "Exam ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exams/{id}/submissions [get]
func (h *GradingHandler) ListSubmissions(c *gin.Context) {
	var filter models.SubmissionFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	filter.Status = models.SubmissionStatus(c.Query("status"))

	submissions, total, err := h.service.ListSubmissions(c.Request.Context(), c.Param("id"), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, submissions, pagination)
}

// StartOCR godoc
// @Summary Start OCR
// @Description Move a pending submission into the processing state
// @Tags Grading
// @Produce json
// @Param id path string true "Submission ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/ocr [post]
func (h *GradingHandler) StartOCR(c *gin.Context) {
	if err := h.service.StartOCR(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, gin.H{"status": "processing"}, nil)
}

// HandleOCRResult godoc
// @Summary OCR callback
// @Description Record the OCR outcome for a processing submission
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.OCRResult true "OCR result"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/ocr-result [post]
func (h *GradingHandler) HandleOCRResult(c *gin.Context) {
	var result dto.OCRResult
	if err := c.ShouldBindJSON(&result); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.HandleOCRResult(c.Request.Context(), c.Param("id"), result); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// HandleAIGrades godoc
// @Summary AI grading callback
// @Description Record machine scores for a submission in the grading state
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.AIGradesRequest true "AI grades"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/ai-grades [post]
func (h *GradingHandler) HandleAIGrades(c *gin.Context) {
	var req dto.AIGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.HandleAIGrades(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Sheet godoc
// @Summary Grading sheet
// @Description The per-question grading view for one submission
// @Tags Grading
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions/{id}/sheet [get]
func (h *GradingHandler) Sheet(c *gin.Context) {
	sheet, err := h.service.Sheet(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sheet, nil)
}

// SaveGrades godoc
// @Summary Save manual grades
// @Description Save the teacher's per-question scores for a submission
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.SaveGradesRequest true "Grades payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/grades [put]
func (h *GradingHandler) SaveGrades(c *gin.Context) {
	var req dto.SaveGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	total, err := h.service.SaveGrades(c.Request.Context(), c.Param("id"), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"scored_marks": total}, nil)
}

// Results godoc
// @Summary Exam results
// @Description The per-student result sheet of an exam
// @Tags Grading
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exams/{id}/results [get]
func (h *GradingHandler) Results(c *gin.Context) {
	rows, exam, err := h.service.Results(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"exam": exam, "results": rows}, nil)
}
