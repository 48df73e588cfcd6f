package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/trustteams/trustteams-api/internal/models"
	"github.com/trustteams/trustteams-api/internal/service"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
	"github.com/trustteams/trustteams-api/pkg/response"
)

// OpportunityHandler wires HTTP endpoints to the opportunity catalog.
type OpportunityHandler struct {
	service *service.OpportunityService
}

// NewOpportunityHandler creates a new handler.
func NewOpportunityHandler(svc *service.OpportunityService) *OpportunityHandler {
	return &OpportunityHandler{service: svc}
}

// List godoc
// @Summary List opportunities
// @Description Filtered, sorted, paginated catalog read; expired postings are closed first
// @Tags Opportunities
// @Produce json
// @Param search query string false "Title/description substring"
// @Param type query string false "Opportunity type"
// @Param status query string false "open or closed"
// @Param sortBy query string false "created_at, title, closing_date, status, type"
// @Param sortDir query string false "asc or desc"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /opportunities [get]
func (h *OpportunityHandler) List(c *gin.Context) {
	filter := models.OpportunityFilter{
		Search:  c.Query("search"),
		Type:    c.Query("type"),
		Status:  c.Query("status"),
		SortBy:  c.Query("sortBy"),
		SortDir: c.Query("sortDir"),
		Limit:   intQuery(c, "limit", 10),
		Offset:  intQuery(c, "offset", 0),
	}

	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get an opportunity
// @Tags Opportunities
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /opportunities/{id} [get]
func (h *OpportunityHandler) Get(c *gin.Context) {
	opp, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, opp, nil)
}

// Create godoc
// @Summary Post an opportunity
// @Description Create a posting and notify the student audience
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param payload body models.CreateOpportunityRequest true "Opportunity payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /opportunities [post]
func (h *OpportunityHandler) Create(c *gin.Context) {
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

	opp, err := h.service.Create(c.Request.Context(), user.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, opp)
}

// Update godoc
// @Summary Update an opportunity
// @Description Full-row replace of the editable fields; poster or admin only
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param id path string true "Opportunity ID"
// @Param payload body models.UpdateOpportunityRequest true "Opportunity payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /opportunities/{id} [put]
func (h *OpportunityHandler) Update(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid opportunity payload"))
		return
	}

	opp, err := h.service.Update(c.Request.Context(), c.Param("id"), user.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, opp, nil)
}

// Delete godoc
// @Summary Soft-delete an opportunity
// @Description Admin only; the row is retained for audit linkage
// @Tags Opportunities
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /opportunities/{id} [delete]
func (h *OpportunityHandler) Delete(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Audit godoc
// @Summary Opportunity audit trail
// @Description Full audit trail for one opportunity, newest first
// @Tags Opportunities
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /opportunities/{id}/audit [get]
func (h *OpportunityHandler) Audit(c *gin.Context) {
	entries, err := h.service.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, nil)
}

// CloseExpired godoc
// @Summary Close expired opportunities
// @Description Batch sweep intended for a scheduled caller; idempotent
// @Tags Opportunities
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /opportunities/auto-close-expired [post]
func (h *OpportunityHandler) CloseExpired(c *gin.Context) {
	closed, err := h.service.CloseExpired(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"closed": closed}, nil)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
