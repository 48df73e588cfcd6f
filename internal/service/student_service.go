package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/models"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
)

type studentProfileRepository interface {
	GetStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
	UpsertStudentProfile(ctx context.Context, profile *models.StudentProfile) error
}

type studentUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// StudentService provides the student CV profile use cases.
type StudentService struct {
	profiles studentProfileRepository
	users    studentUserRepository
	logger   *zap.Logger
}

// NewStudentService constructs a StudentService instance.
func NewStudentService(profiles studentProfileRepository, users studentUserRepository, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{profiles: profiles, users: users, logger: logger}
}

// GetProfile returns the student's CV profile, creating an empty one on
// first read.
func (s *StudentService) GetProfile(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetStudentProfile(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// UpdateProfile upserts the whole profile document. The structured lists are
// replaced wholesale, never merged.
func (s *StudentService) UpdateProfile(ctx context.Context, studentID string, req models.UpdateStudentProfileRequest) (*models.StudentProfile, error) {
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}

	current, err := s.profiles.GetStudentProfile(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	if req.Summary != nil {
		current.Summary = *req.Summary
	}
	if req.LinkedIn != nil {
		current.LinkedIn = *req.LinkedIn
	}
	if req.GitHub != nil {
		current.GitHub = *req.GitHub
	}
	if req.Website != nil {
		current.Website = *req.Website
	}
	if req.Education != nil {
		current.Education = req.Education
	}
	if req.Experience != nil {
		current.Experience = req.Experience
	}
	if req.Skills != nil {
		current.Skills = req.Skills
	}
	if req.Projects != nil {
		current.Projects = req.Projects
	}

	if err := s.profiles.UpsertStudentProfile(ctx, current); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save profile")
	}
	return current, nil
}

func (s *StudentService) requireStudent(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "unknown caller")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caller")
	}
	if user.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "student role required")
	}
	return nil
}
