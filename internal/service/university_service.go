package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/models"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
)

type universityRepository interface {
	FindByID(ctx context.Context, id string) (*models.University, error)
	List(ctx context.Context) ([]models.University, error)
	Create(ctx context.Context, u *models.University) error
}

type universityUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	ListByUniversityRole(ctx context.Context, universityID string, role models.UserRole, status string) ([]models.User, error)
	CountByRole(ctx context.Context, universityID string, role models.UserRole) (models.RoleCounts, error)
	DeleteCascade(ctx context.Context, id string) error
}

type universityRegistrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.RegistrationRequest, error)
	ListForUniversity(ctx context.Context, universityID, status string) ([]models.RegistrationRequest, error)
	Decide(ctx context.Context, requestID, reviewerID string, status models.ApprovalStatus, note *string) error
}

// UniversityService provides the university admin surface: the institution
// directory, registration inbox, per-role stats, and same-university user
// management.
type UniversityService struct {
	universities  universityRepository
	users         universityUserRepository
	registrations universityRegistrationRepository
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewUniversityService constructs a UniversityService instance.
func NewUniversityService(
	universities universityRepository,
	users universityUserRepository,
	registrations universityRegistrationRepository,
	validate *validator.Validate,
	logger *zap.Logger,
) *UniversityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UniversityService{
		universities:  universities,
		users:         users,
		registrations: registrations,
		validator:     validate,
		logger:        logger,
	}
}

// List returns the public institution directory.
func (s *UniversityService) List(ctx context.Context) ([]models.University, error) {
	universities, err := s.universities.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list universities")
	}
	return universities, nil
}

// Create registers a new institution. Platform admin only.
func (s *UniversityService) Create(ctx context.Context, callerID string, req models.CreateUniversityRequest) (*models.University, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid university payload")
	}
	caller, err := s.adminCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if caller.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may create universities")
	}

	u := &models.University{Name: req.Name, Domain: req.Domain}
	if err := s.universities.Create(ctx, u); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create university")
	}
	return u, nil
}

// Stats aggregates the caller's institution population by role and approval
// status.
func (s *UniversityService) Stats(ctx context.Context, callerID string) (*models.UniversityStats, error) {
	caller, err := s.universityAdminCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}

	students, err := s.users.CountByRole(ctx, *caller.UniversityID, models.RoleStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	leaders, err := s.users.CountByRole(ctx, *caller.UniversityID, models.RoleAcademicLeader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count academic leaders")
	}

	return &models.UniversityStats{Students: students, AcademicLeaders: leaders}, nil
}

// Registrations returns the caller's registration inbox, optionally filtered
// by status.
func (s *UniversityService) Registrations(ctx context.Context, callerID, status string) ([]models.RegistrationRequest, error) {
	caller, err := s.universityAdminCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	requests, err := s.registrations.ListForUniversity(ctx, *caller.UniversityID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registration requests")
	}
	return requests, nil
}

// Decide approves or rejects a pending registration request. The request row
// and the subject account are updated in one transaction.
func (s *UniversityService) Decide(ctx context.Context, requestID, callerID string, req models.DecideRegistrationRequest) (*models.RegistrationRequest, error) {
	caller, err := s.universityAdminCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}

	request, err := s.registrations.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration request")
	}
	if request.UniversityID == nil || *request.UniversityID != *caller.UniversityID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to a different university")
	}
	if request.Status != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "request has already been decided")
	}

	status := models.ApprovalRejected
	if req.Approve {
		status = models.ApprovalApproved
	}
	if err := s.registrations.Decide(ctx, requestID, callerID, status, req.Note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "request has already been decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	decided, err := s.registrations.FindByID(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload registration request")
	}
	return decided, nil
}

// Members lists users of one role within the caller's institution.
func (s *UniversityService) Members(ctx context.Context, callerID string, role models.UserRole, status string) ([]models.User, error) {
	caller, err := s.universityAdminCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleStudent && role != models.RoleAcademicLeader {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be student or academic_leader")
	}
	users, err := s.users.ListByUniversityRole(ctx, *caller.UniversityID, role, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}
	return users, nil
}

// Member returns one same-university user.
func (s *UniversityService) Member(ctx context.Context, callerID, userID string) (*models.UserInfo, error) {
	caller, err := s.universityAdminCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	subject, err := s.sameUniversitySubject(ctx, caller, userID)
	if err != nil {
		return nil, err
	}
	info := subject.Info()
	return &info, nil
}

// UpdateMember renames a same-university user.
func (s *UniversityService) UpdateMember(ctx context.Context, callerID, userID string, req models.UpdateProfileRequest) (*models.UserInfo, error) {
	caller, err := s.universityAdminCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	subject, err := s.sameUniversitySubject(ctx, caller, userID)
	if err != nil {
		return nil, err
	}

	changed := false
	if req.Name != nil && *req.Name != "" && *req.Name != subject.Name {
		subject.Name = *req.Name
		changed = true
	}
	if req.InstituteName != nil && (subject.InstituteName == nil || *req.InstituteName != *subject.InstituteName) {
		subject.InstituteName = req.InstituteName
		changed = true
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrNoChanges, "nothing to update")
	}

	if err := s.users.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update member")
	}
	info := subject.Info()
	return &info, nil
}

// DeleteMember hard-deletes a same-university user together with their
// registration requests. Refused against the caller themselves and against
// other admins.
func (s *UniversityService) DeleteMember(ctx context.Context, callerID, userID string) error {
	caller, err := s.universityAdminCaller(ctx, callerID)
	if err != nil {
		return err
	}
	if userID == callerID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete your own account")
	}
	subject, err := s.sameUniversitySubject(ctx, caller, userID)
	if err != nil {
		return err
	}
	if subject.Role == models.RoleUniversityAdmin || subject.Role == models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete another administrator")
	}

	if err := s.users.DeleteCascade(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete member")
	}
	s.logger.Info("university member deleted", zap.String("user_id", userID), zap.String("deleted_by", callerID))
	return nil
}

func (s *UniversityService) adminCaller(ctx context.Context, callerID string) (*models.User, error) {
	caller, err := s.users.FindByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown caller")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caller")
	}
	return caller, nil
}

func (s *UniversityService) universityAdminCaller(ctx context.Context, callerID string) (*models.User, error) {
	caller, err := s.adminCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if caller.Role != models.RoleUniversityAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "university admin role required")
	}
	if caller.UniversityID == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller has no university affiliation")
	}
	return caller, nil
}

func (s *UniversityService) sameUniversitySubject(ctx context.Context, caller *models.User, userID string) (*models.User, error) {
	subject, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if subject.UniversityID == nil || *subject.UniversityID != *caller.UniversityID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user belongs to a different university")
	}
	return subject, nil
}
