package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trustteams/trustteams-api/internal/models"
	"github.com/trustteams/trustteams-api/internal/service"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
	"github.com/trustteams/trustteams-api/pkg/response"
)

// ICMHandler wires HTTP endpoints to the industry manager view.
type ICMHandler struct {
	service *service.ICMService
}

// NewICMHandler creates a new handler.
func NewICMHandler(svc *service.ICMService) *ICMHandler {
	return &ICMHandler{service: svc}
}

// MyOpportunities godoc
// @Summary The manager's own postings
// @Tags ICM
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /icm/opportunities [get]
func (h *ICMHandler) MyOpportunities(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	items, pagination, err := h.service.MyOpportunities(c.Request.Context(), user.ID, intQuery(c, "limit", 10), intQuery(c, "offset", 0))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination)
}

// Applicants godoc
// @Summary Applicants to one of the manager's postings
// @Tags ICM
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /icm/opportunities/{id}/applicants [get]
func (h *ICMHandler) Applicants(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	apps, err := h.service.Applicants(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, apps, nil)
}

// ExportApplicants godoc
// @Summary Export the applicant list
// @Description Renders the applicant list as CSV (default) or PDF
// @Tags ICM
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Opportunity ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} byte
// @Failure 403 {object} response.Envelope
// @Router /icm/opportunities/{id}/applicants/export [get]
func (h *ICMHandler) ExportApplicants(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.service.ExportApplicants(c.Request.Context(), user.ID, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	ext := "csv"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="applicants.%s"`, ext))
	c.Data(http.StatusOK, contentType, payload)
}

// Stats godoc
// @Summary The manager's posting and applicant activity
// @Tags ICM
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /icm/stats [get]
func (h *ICMHandler) Stats(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, stats, nil)
}

// CompanyProfile godoc
// @Summary Get company profile
// @Tags ICM
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /icm/profile [get]
func (h *ICMHandler) CompanyProfile(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	profile, err := h.service.CompanyProfile(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateCompanyProfile godoc
// @Summary Update company profile
// @Description Replaces the supplied document sections
// @Tags ICM
// @Accept json
// @Produce json
// @Param payload body models.UpdateICMProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /icm/profile [put]
func (h *ICMHandler) UpdateCompanyProfile(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateICMProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}

	profile, err := h.service.UpdateCompanyProfile(c.Request.Context(), user.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile, nil)
}
