package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/mailer"
	"github.com/trustteams/trustteams-api/internal/models"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
)

type applicationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	Exists(ctx context.Context, opportunityID, studentID string) (bool, error)
	Create(ctx context.Context, app *models.Application) error
	ListForOpportunity(ctx context.Context, opportunityID string) ([]models.Application, error)
	ListForStudent(ctx context.Context, studentID string) ([]models.Application, error)
	UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string) error
	Withdraw(ctx context.Context, id, studentID string) error
}

type applicationOpportunityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Opportunity, error)
}

type applicationUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ApplicationService provides the application pipeline use cases.
type ApplicationService struct {
	applications  applicationRepository
	opportunities applicationOpportunityRepository
	users         applicationUserRepository
	mail          mailer.Mailer
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewApplicationService constructs an ApplicationService instance.
func NewApplicationService(
	applications applicationRepository,
	opportunities applicationOpportunityRepository,
	users applicationUserRepository,
	mail mailer.Mailer,
	validate *validator.Validate,
	logger *zap.Logger,
) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApplicationService{
		applications:  applications,
		opportunities: opportunities,
		users:         users,
		mail:          mail,
		validator:     validate,
		logger:        logger,
	}
}

// Apply submits a student application. The opportunity must be open and not
// past its deadline, and a student may apply to it only once. The
// confirmation email is best effort.
func (s *ApplicationService) Apply(ctx context.Context, studentID string, req models.ApplyRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown caller")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caller")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may apply")
	}

	opp, err := s.opportunities.FindByID(ctx, req.OpportunityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}

	now := time.Now().UTC()
	if opp.Status != models.OpportunityOpen || (opp.ClosingDate != nil && opp.ClosingDate.Before(now)) {
		return nil, appErrors.Clone(appErrors.ErrOpportunityClosed, "opportunity is closed for applications")
	}

	exists, err := s.applications.Exists(ctx, req.OpportunityID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing application")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateApplication, "already applied to this opportunity")
	}

	app := &models.Application{
		OpportunityID:      req.OpportunityID,
		StudentID:          studentID,
		Status:             models.ApplicationPending,
		CoverLetter:        req.CoverLetter,
		GPA:                req.GPA,
		ExpectedGraduation: req.ExpectedGraduation,
		RelevantCourses:    req.RelevantCourses,
		Skills:             req.Skills,
		ExperienceSummary:  req.ExperienceSummary,
	}
	if err := s.applications.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	if err := s.mail.SendApplicationConfirmation(student.Email, student.Name, opp.Title); err != nil {
		s.logger.Warn("failed to send application confirmation", zap.String("email", student.Email), zap.Error(err))
	}

	return app, nil
}

// ListForOpportunity returns every application to one posting. Only the
// poster or a university admin may look.
func (s *ApplicationService) ListForOpportunity(ctx context.Context, opportunityID, callerID string) ([]models.Application, error) {
	opp, err := s.opportunities.FindByID(ctx, opportunityID)
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
	if opp.PostedBy != callerID && caller.Role != models.RoleUniversityAdmin && caller.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view these applications")
	}

	apps, err := s.applications.ListForOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, nil
}

// ListForStudent returns a student's applications. Students may only list
// their own; an academic leader may list applications of students within
// their own university.
func (s *ApplicationService) ListForStudent(ctx context.Context, studentID, callerID string) ([]models.Application, error) {
	if callerID != studentID {
		caller, err := s.users.FindByID(ctx, callerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown caller")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caller")
		}
		if caller.Role != models.RoleAcademicLeader && caller.Role != models.RoleAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view these applications")
		}
		if caller.Role == models.RoleAcademicLeader {
			student, err := s.users.FindByID(ctx, studentID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
			}
			if !sameUniversity(caller, student) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to a different university")
			}
		}
	}

	apps, err := s.applications.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, nil
}

// UpdateStatus applies a reviewer decision. An icm/manager reviewer must be
// the opportunity's poster; an academic leader must share a university with
// the applicant. The reviewer is always recorded, and the decision email is
// best effort.
func (s *ApplicationService) UpdateStatus(ctx context.Context, applicationID, reviewerID string, req models.UpdateApplicationStatusRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	newStatus := models.ApplicationStatus(req.Status)
	if !models.ReviewerDecision(newStatus) {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "status must be approved or rejected")
	}

	app, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.Status != models.ApplicationPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "application has already been decided")
	}

	reviewer, err := s.users.FindByID(ctx, reviewerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown reviewer")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviewer")
	}

	opp, err := s.opportunities.FindByID(ctx, app.OpportunityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}

	student, err := s.users.FindByID(ctx, app.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "applicant no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applicant")
	}

	switch {
	case reviewer.Role.ManagerEquivalent():
		if opp.PostedBy != reviewerID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the opportunity poster may review")
		}
	case reviewer.Role == models.RoleAcademicLeader:
		if !sameUniversity(reviewer, student) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "applicant belongs to a different university")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not review applications")
	}

	if err := s.applications.UpdateStatus(ctx, applicationID, newStatus, reviewerID, req.ReviewNotes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
	}

	notes := ""
	if req.ReviewNotes != nil {
		notes = *req.ReviewNotes
	}
	if err := s.mail.SendApplicationDecision(student.Email, student.Name, opp.Title, reviewer.Name, notes, newStatus == models.ApplicationApproved); err != nil {
		s.logger.Warn("failed to send decision email", zap.String("email", student.Email), zap.Error(err))
	}

	now := time.Now().UTC()
	app.Status = newStatus
	app.ReviewedBy = &reviewerID
	app.ReviewedAt = &now
	app.ReviewNotes = req.ReviewNotes
	return app, nil
}

// Withdraw flips the caller's own pending application to withdrawn. No
// notification is sent.
func (s *ApplicationService) Withdraw(ctx context.Context, applicationID, studentID string) error {
	app, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the applicant may withdraw")
	}
	if app.Status != models.ApplicationPending {
		return appErrors.Clone(appErrors.ErrInvalidStatus, "only pending applications can be withdrawn")
	}

	if err := s.applications.Withdraw(ctx, applicationID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidStatus, "only pending applications can be withdrawn")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw application")
	}
	return nil
}

func sameUniversity(a, b *models.User) bool {
	if a.UniversityID != nil && b.UniversityID != nil {
		return *a.UniversityID == *b.UniversityID
	}
	// Fallback heuristic for accounts with no explicit affiliation.
	return a.EmailDomain() != "" && a.EmailDomain() == b.EmailDomain()
}
