package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/models"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
)

type opportunityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Opportunity, error)
	List(ctx context.Context, filter models.OpportunityFilter) ([]models.Opportunity, int, error)
	Create(ctx context.Context, opp *models.Opportunity) error
	Update(ctx context.Context, before, after *models.Opportunity, changedBy string) error
	SoftDelete(ctx context.Context, opp *models.Opportunity, changedBy string) error
	CloseExpired(ctx context.Context, now time.Time) ([]string, error)
	ListAudit(ctx context.Context, opportunityID string) ([]models.OpportunityAudit, error)
}

type opportunityUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ActiveVerifiedStudents(ctx context.Context) ([]models.User, error)
}

// opportunityAnnouncer fans a new posting out to the student audience.
type opportunityAnnouncer interface {
	Announce(opp *models.Opportunity, recipients []models.User)
}

// OpportunityService provides the opportunity catalog use cases.
type OpportunityService struct {
	opportunities opportunityRepository
	users         opportunityUserRepository
	announcer     opportunityAnnouncer
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewOpportunityService constructs an OpportunityService instance.
func NewOpportunityService(
	opportunities opportunityRepository,
	users opportunityUserRepository,
	announcer opportunityAnnouncer,
	validate *validator.Validate,
	logger *zap.Logger,
) *OpportunityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &OpportunityService{
		opportunities: opportunities,
		users:         users,
		announcer:     announcer,
		validator:     validate,
		logger:        logger,
	}
}

// List returns catalog entries matching the filter. Expired open postings are
// closed before the results are returned, so callers never observe a stale
// open status.
func (s *OpportunityService) List(ctx context.Context, filter models.OpportunityFilter) ([]models.Opportunity, *models.Pagination, error) {
	s.closeExpired(ctx)

	items, total, err := s.opportunities.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list opportunities")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return items, models.NewPagination(total, limit, filter.Offset), nil
}

// Get returns one posting, closing it first when its deadline has passed.
func (s *OpportunityService) Get(ctx context.Context, id string) (*models.Opportunity, error) {
	opp, err := s.opportunities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}

	if opp.Expired(time.Now().UTC()) {
		s.closeExpired(ctx)
		if opp, err = s.opportunities.FindByID(ctx, id); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload opportunity")
		}
	}
	return opp, nil
}

// Create inserts a posting, writes its CREATE audit entry, and fans a
// notification out to every active verified student. Email outcomes never
// affect the result.
func (s *OpportunityService) Create(ctx context.Context, posterID string, req models.CreateOpportunityRequest) (*models.Opportunity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid opportunity payload")
	}

	poster, err := s.users.FindByID(ctx, posterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown poster")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load poster")
	}
	if !poster.Role.CanPostOpportunities() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not post opportunities")
	}

	oppType := models.OpportunityType(req.Type)
	if !models.ValidOpportunityType(oppType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown opportunity type")
	}

	closingDate, err := parseDeadline(req.Deadline)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "deadline must be a valid date")
	}

	opp := &models.Opportunity{
		Title:        req.Title,
		Type:         oppType,
		Description:  req.Description,
		Requirements: req.Requirements,
		Stipend:      req.Stipend,
		Duration:     req.Duration,
		Location:     req.Location,
		Status:       models.OpportunityOpen,
		ClosingDate:  closingDate,
		PostedBy:     posterID,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
	}

	if err := s.opportunities.Create(ctx, opp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create opportunity")
	}

	s.broadcast(ctx, opp)
	return opp, nil
}

// Update replaces the editable fields. Only the original poster or an admin
// may edit.
func (s *OpportunityService) Update(ctx context.Context, id, callerID string, req models.UpdateOpportunityRequest) (*models.Opportunity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid opportunity payload")
	}

	before, err := s.opportunities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}

	caller, err := s.users.FindByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown caller")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caller")
	}
	if before.PostedBy != callerID && caller.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the poster or an admin may edit this opportunity")
	}

	oppType := models.OpportunityType(req.Type)
	if !models.ValidOpportunityType(oppType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown opportunity type")
	}

	closingDate, err := parseDeadline(req.Deadline)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "deadline must be a valid date")
	}

	status := before.Status
	if req.Status != nil {
		status = models.OpportunityStatus(*req.Status)
		if status != models.OpportunityOpen && status != models.OpportunityClosed {
			return nil, appErrors.Clone(appErrors.ErrValidation, "status must be open or closed")
		}
	}

	after := *before
	after.Title = req.Title
	after.Type = oppType
	after.Description = req.Description
	after.Requirements = req.Requirements
	after.Stipend = req.Stipend
	after.Duration = req.Duration
	after.Location = req.Location
	after.Status = status
	after.ClosingDate = closingDate
	after.ContactEmail = req.ContactEmail
	after.ContactPhone = req.ContactPhone

	if err := s.opportunities.Update(ctx, before, &after, callerID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update opportunity")
	}
	return &after, nil
}

// Delete soft-deletes a posting. Admin only; the ownership-based variant of
// this policy is superseded.
func (s *OpportunityService) Delete(ctx context.Context, id, callerID string) error {
	caller, err := s.users.FindByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "unknown caller")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caller")
	}
	if caller.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may delete opportunities")
	}

	opp, err := s.opportunities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}

	if err := s.opportunities.SoftDelete(ctx, opp, callerID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete opportunity")
	}
	return nil
}

// CloseExpired runs the expiry sweep and reports how many postings were
// closed. Idempotent.
func (s *OpportunityService) CloseExpired(ctx context.Context) (int, error) {
	ids, err := s.opportunities.CloseExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close expired opportunities")
	}
	if len(ids) > 0 {
		s.logger.Info("closed expired opportunities", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// Audit returns the opportunity's audit trail, newest first.
func (s *OpportunityService) Audit(ctx context.Context, id string) ([]models.OpportunityAudit, error) {
	if _, err := s.opportunities.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}
	entries, err := s.opportunities.ListAudit(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return entries, nil
}

func (s *OpportunityService) closeExpired(ctx context.Context) {
	if _, err := s.opportunities.CloseExpired(ctx, time.Now().UTC()); err != nil {
		s.logger.Warn("expiry sweep failed", zap.Error(err))
	}
}

func (s *OpportunityService) broadcast(ctx context.Context, opp *models.Opportunity) {
	if s.announcer == nil {
		return
	}
	recipients, err := s.users.ActiveVerifiedStudents(ctx)
	if err != nil {
		s.logger.Warn("failed to load broadcast audience", zap.Error(err))
		return
	}
	s.announcer.Announce(opp, recipients)
}

// parseDeadline accepts RFC 3339 timestamps and bare dates.
func parseDeadline(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, *raw); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, errors.New("unparseable deadline")
}
