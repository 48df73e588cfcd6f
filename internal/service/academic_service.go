package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/models"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
)

type academicUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListByUniversityRole(ctx context.Context, universityID string, role models.UserRole, status string) ([]models.User, error)
	ListByEmailDomain(ctx context.Context, domain string, role models.UserRole) ([]models.User, error)
	DeleteCascade(ctx context.Context, id string) error
}

type academicOpportunityLister interface {
	List(ctx context.Context, filter models.OpportunityFilter) ([]models.Opportunity, int, error)
}

// AcademicService provides the academic leader view: their own postings and
// the students of their institution.
type AcademicService struct {
	users         academicUserRepository
	opportunities academicOpportunityLister
	logger        *zap.Logger
}

// NewAcademicService constructs an AcademicService instance.
func NewAcademicService(users academicUserRepository, opportunities academicOpportunityLister, logger *zap.Logger) *AcademicService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicService{users: users, opportunities: opportunities, logger: logger}
}

// MyOpportunities returns the leader's own postings.
func (s *AcademicService) MyOpportunities(ctx context.Context, leaderID string, limit, offset int) ([]models.Opportunity, *models.Pagination, error) {
	if _, err := s.leaderCaller(ctx, leaderID); err != nil {
		return nil, nil, err
	}

	filter := models.OpportunityFilter{PostedBy: leaderID, Limit: limit, Offset: offset}
	items, total, err := s.opportunities.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list opportunities")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return items, models.NewPagination(total, limit, offset), nil
}

// MyStudents returns the students of the leader's institution. When the
// leader has no explicit affiliation the email-domain heuristic is used.
func (s *AcademicService) MyStudents(ctx context.Context, leaderID string) ([]models.User, error) {
	leader, err := s.leaderCaller(ctx, leaderID)
	if err != nil {
		return nil, err
	}

	if leader.UniversityID != nil {
		students, err := s.users.ListByUniversityRole(ctx, *leader.UniversityID, models.RoleStudent, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
		}
		return students, nil
	}

	domain := leader.EmailDomain()
	if domain == "" {
		return []models.User{}, nil
	}
	students, err := s.users.ListByEmailDomain(ctx, domain, models.RoleStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// DeleteStudent removes a student account of the leader's own institution,
// cascading their registration requests.
func (s *AcademicService) DeleteStudent(ctx context.Context, leaderID, studentID string) error {
	leader, err := s.leaderCaller(ctx, leaderID)
	if err != nil {
		return err
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "only student accounts can be removed")
	}
	if !sameUniversity(leader, student) {
		return appErrors.Clone(appErrors.ErrForbidden, "student belongs to another institution")
	}

	if err := s.users.DeleteCascade(ctx, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student removed by academic leader",
		zap.String("leader_id", leaderID),
		zap.String("student_id", studentID))
	return nil
}

func (s *AcademicService) leaderCaller(ctx context.Context, id string) (*models.User, error) {
	caller, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown caller")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caller")
	}
	if caller.Role != models.RoleAcademicLeader {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "academic leader role required")
	}
	return caller, nil
}
