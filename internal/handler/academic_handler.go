package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trustteams/trustteams-api/internal/models"
	"github.com/trustteams/trustteams-api/internal/service"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
	"github.com/trustteams/trustteams-api/pkg/response"
)

// AcademicHandler wires HTTP endpoints to the academic leader view.
type AcademicHandler struct {
	academic      *service.AcademicService
	opportunities *service.OpportunityService
}

// NewAcademicHandler creates a new handler.
func NewAcademicHandler(academic *service.AcademicService, opportunities *service.OpportunityService) *AcademicHandler {
	return &AcademicHandler{academic: academic, opportunities: opportunities}
}

// MyOpportunities godoc
// @Summary The leader's own postings
// @Tags Academic
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /academic/opportunities [get]
func (h *AcademicHandler) MyOpportunities(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	items, pagination, err := h.academic.MyOpportunities(c.Request.Context(), user.ID, intQuery(c, "limit", 10), intQuery(c, "offset", 0))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination)
}

// CreateOpportunity godoc
// @Summary Post an opportunity as academic leader
// @Description Convenience endpoint; behaves exactly like the catalog create, broadcast included
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body models.CreateOpportunityRequest true "Opportunity payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /academic/opportunities [post]
func (h *AcademicHandler) CreateOpportunity(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid opportunity payload"))
		return
	}

	opp, err := h.opportunities.Create(c.Request.Context(), user.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, opp)
}

// MyStudents godoc
// @Summary Students of the leader's institution
// @Tags Academic
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /academic/students [get]
func (h *AcademicHandler) MyStudents(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	students, err := h.academic.MyStudents(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, students, nil)
}

// DeleteStudent godoc
// @Summary Remove a student of the leader's institution
// @Tags Academic
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /academic/students/{id} [delete]
func (h *AcademicHandler) DeleteStudent(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.academic.DeleteStudent(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"deleted": true}, nil)
}
